package testsupport

import (
	"database/sql"

	"github.com/goliatone/go-repository-hotstorage/schema"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Person has a single-column unique constraint on SSN and a nullable unique
// email.
type Person struct {
	bun.BaseModel `bun:"table:people" msgpack:"-"`

	ID    string         `bun:"id,pk" msgpack:"id"`
	Name  string         `bun:"name,notnull" msgpack:"name"`
	SSN   string         `bun:"ssn,unique" msgpack:"ssn"`
	Email sql.NullString `bun:"email,unique" msgpack:"email"`
}

// PhoneNumber is unique on the (person, phone_number) pair.
type PhoneNumber struct {
	bun.BaseModel `bun:"table:phone_numbers" msgpack:"-"`

	ID          string `bun:"id,pk" msgpack:"id"`
	PersonID    string `bun:"person_id,unique:person_phone" msgpack:"person_id"`
	Label       string `bun:"label" msgpack:"label"`
	PhoneNumber string `bun:"phone_number,unique:person_phone" msgpack:"phone_number"`
}

// PersonType resolves Person from its bun tags.
func PersonType() *schema.Type[Person] {
	t, err := schema.FromBunModel[Person](schema.WithPrefix("testapp.person"))
	if err != nil {
		panic(err)
	}
	return t
}

// PhoneNumberType resolves PhoneNumber from its bun tags.
func PhoneNumberType() *schema.Type[PhoneNumber] {
	t, err := schema.FromBunModel[PhoneNumber](schema.WithPrefix("testapp.phonenumber"))
	if err != nil {
		panic(err)
	}
	return t
}

// Email wraps a non-empty address for Person.Email.
func Email(address string) sql.NullString {
	return sql.NullString{String: address, Valid: address != ""}
}

// NewID returns a random primary key.
func NewID() string {
	return uuid.NewString()
}
