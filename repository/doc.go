// Package repository provides a generic CRUD repository bound to one bun model
// and one identifier type, delegating every operation to a unit-of-work Session.
//
// A concrete repository is declared by embedding:
//
//	type ArtistRepository struct {
//		*repository.Repository[Artist, int64]
//	}
//
//	func NewArtistRepository(s repository.Session) (*ArtistRepository, error) {
//		base, err := repository.New[Artist, int64](s)
//		if err != nil {
//			return nil, err
//		}
//		return &ArtistRepository{Repository: base}, nil
//	}
//
// The model is resolved once when the repository is constructed; a type that
// bun cannot map to a table with a single primary key is rejected with an
// error matching ErrConfiguration.
package repository
