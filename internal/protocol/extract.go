package protocol

import (
	"github.com/skordev/authline/internal/store"
	"github.com/skordev/authline/internal/user"
)

var changeFields = map[string]store.Field{
	FlagNewUsername: store.FieldUsername,
	FlagNewFirst:    store.FieldFirstName,
	FlagNewLast:     store.FieldLastName,
	FlagNewEmail:    store.FieldEmail,
	FlagNewPassword: store.FieldPassword,
}

// ExtractChanges pulls the change pairs out of a validated update-user
// argument list. Unrecognized flags are dropped.
func ExtractChanges(args []string) store.Changes {
	changes := make(store.Changes)
	for i := 2; i < len(args)-1; i += 2 {
		if field, ok := changeFields[args[i]]; ok {
			changes[field] = args[i+1]
		}
	}
	return changes
}

// ExtractRegistration builds the account and profile from a validated
// register argument list.
func ExtractRegistration(args []string) (user.Account, user.Profile) {
	acct := user.Account{Username: args[1], Password: args[3]}
	prof := user.Profile{FirstName: args[5], LastName: args[7], Email: args[9]}
	return acct, prof
}
