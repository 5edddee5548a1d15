package pgxlocal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// pgStateStore is the production stateStore, grounded on
// FC/storage/postgres.go's mustExec/init pattern of creating its
// working table on startup rather than assuming a migration ran.
type pgStateStore struct {
	pool *pgxpool.Pool
}

// EnsureSchema creates the side table tracking in-flight GIDs if it
// does not already exist. Called once at node startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS mtm_prepared_state (
		gid        text PRIMARY KEY,
		state      smallint NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("pgxlocal: ensure schema: %w", err)
	}
	return nil
}

func (p pgStateStore) setState(ctx context.Context, gid string, state txState) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO mtm_prepared_state (gid, state, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (gid) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		gid, int(state))
	return err
}

func (p pgStateStore) getState(ctx context.Context, gid string) (txState, bool, error) {
	var state int
	err := p.pool.QueryRow(ctx, `SELECT state FROM mtm_prepared_state WHERE gid = $1`, gid).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stateUnknown, false, nil
		}
		return stateUnknown, false, err
	}
	return txState(state), true, nil
}
