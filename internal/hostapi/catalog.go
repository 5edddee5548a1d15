// Package hostapi is the host-integration glue: the explicit
// CoreContext object the rest of this core is threaded through
// (replacing the teacher's package-level config/conLock globals, per
// spec §9 "Global mutable state -> explicit context"), the HostHooks
// interface the host engine calls into, and the NodeCatalog persisting
// §6's mtm.nodes table and the slot/publication naming derived from
// it.
package hostapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// NodeEntry is one row of the mtm.nodes catalog (§6 persisted state).
type NodeEntry struct {
	ID       int
	ConnInfo string
	IsSelf   bool
}

// SlotName returns the logical replication slot name this core
// subscribes to node's changes on, pattern mtm_slot_<node_id> (§6).
func SlotName(node int) string { return fmt.Sprintf("mtm_slot_%d", node) }

// RecoverySlotName returns node's recovery slot name, pattern
// mtm_recovery_<node_id> (§6).
func RecoverySlotName(node int) string { return fmt.Sprintf("mtm_recovery_%d", node) }

// PublicationName is the publication that doubles as this node's
// "configured" flag (§6): its mere existence means mtm_after_node_create
// has run.
const PublicationName = "multimaster"

// NodeCatalog is the persisted-state API for mtm.nodes: the admin's
// only legitimate mutators are mtm_after_node_create/mtm_after_node_drop
// (§6); everything else only reads.
type NodeCatalog interface {
	// Nodes returns every configured node, admin-insertion order.
	Nodes(ctx context.Context) ([]NodeEntry, error)
	// IsConfigured reports whether the multimaster publication exists,
	// i.e. whether mtm_after_node_create has ever run on this node.
	IsConfigured(ctx context.Context) (bool, error)
	// AfterNodeCreate records a newly admitted node (the only sanctioned
	// INSERT into mtm.nodes, per §6's CLI surface note).
	AfterNodeCreate(ctx context.Context, id int, connInfo string, isSelf bool) error
	// AfterNodeDrop removes a retired node (the only sanctioned DELETE).
	AfterNodeDrop(ctx context.Context, id int) error
}

// pgCatalog is the pgx-backed NodeCatalog, grounded on pgxlocal's
// own EnsureSchema-creates-its-table-on-startup pattern.
type pgCatalog struct {
	pool *pgxpool.Pool
}

// NewNodeCatalog wires a NodeCatalog over a live connection pool.
func NewNodeCatalog(pool *pgxpool.Pool) NodeCatalog {
	return &pgCatalog{pool: pool}
}

// EnsureCatalogSchema creates the mtm.nodes table if it does not
// already exist. Called once at node startup alongside
// pgxlocal.EnsureSchema.
func EnsureCatalogSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS mtm;
		CREATE TABLE IF NOT EXISTS mtm.nodes (
			id        integer PRIMARY KEY,
			conninfo  text NOT NULL,
			is_self   boolean NOT NULL DEFAULT false
		)`)
	if err != nil {
		return fmt.Errorf("hostapi: ensure catalog schema: %w", err)
	}
	return nil
}

func (c *pgCatalog) Nodes(ctx context.Context) ([]NodeEntry, error) {
	rows, err := c.pool.Query(ctx, `SELECT id, conninfo, is_self FROM mtm.nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("hostapi: list nodes: %w", err)
	}
	defer rows.Close()

	var out []NodeEntry
	for rows.Next() {
		var n NodeEntry
		if err := rows.Scan(&n.ID, &n.ConnInfo, &n.IsSelf); err != nil {
			return nil, fmt.Errorf("hostapi: scan node row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *pgCatalog) IsConfigured(ctx context.Context) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_publication WHERE pubname = $1)`, PublicationName).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("hostapi: check publication: %w", err)
	}
	return exists, nil
}

func (c *pgCatalog) AfterNodeCreate(ctx context.Context, id int, connInfo string, isSelf bool) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO mtm.nodes (id, conninfo, is_self) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET conninfo = excluded.conninfo, is_self = excluded.is_self`,
		id, connInfo, isSelf)
	if err != nil {
		return fmt.Errorf("hostapi: after node create %d: %w", id, err)
	}
	return nil
}

func (c *pgCatalog) AfterNodeDrop(ctx context.Context, id int) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM mtm.nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("hostapi: after node drop %d: %w", id, err)
	}
	return nil
}
