package outbox

import "github.com/jackc/pgx/v5"

// Table is the transactional outbox owned by the contracts module.
var Table = pgx.Identifier{"public", "contract_outbox"}
