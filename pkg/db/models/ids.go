package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller left it unset. Postgres also
// defaults ids with gen_random_uuid(); assigning here keeps ids available to
// the caller before the row round-trips and works on sqlite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
