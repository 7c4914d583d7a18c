package postgres

import "context"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS canvases (
        id         text PRIMARY KEY,
        owner_id   text NOT NULL,
        name       text NOT NULL,
        slug       text NOT NULL DEFAULT '',
        mode       text NOT NULL DEFAULT 'default',
        created_at timestamptz NOT NULL DEFAULT now(),
        updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS canvas_nodes (
        id             text PRIMARY KEY,
        canvas_id      text NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
        node_type      text NOT NULL,
        x_position     double precision NOT NULL DEFAULT 0,
        y_position     double precision NOT NULL DEFAULT 0,
        label          text NOT NULL DEFAULT '',
        config         text NOT NULL DEFAULT '',
        runtime_config jsonb NOT NULL DEFAULT '{}',
        is_exposed     boolean NOT NULL DEFAULT false,
        created_at     timestamptz NOT NULL DEFAULT now(),
        updated_at     timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS canvas_nodes_canvas_idx ON canvas_nodes (canvas_id);

CREATE TABLE IF NOT EXISTS canvas_edges (
        id           text PRIMARY KEY,
        canvas_id    text NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
        from_node_id text NOT NULL REFERENCES canvas_nodes(id) ON DELETE CASCADE,
        to_node_id   text NOT NULL REFERENCES canvas_nodes(id) ON DELETE CASCADE,
        from_port    text NOT NULL DEFAULT '',
        to_port      text NOT NULL DEFAULT '',
        condition    text NOT NULL DEFAULT '',
        transform    text NOT NULL DEFAULT '',
        label        text NOT NULL DEFAULT '',
        metadata     jsonb NOT NULL DEFAULT '{}',
        created_at   timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS canvas_edges_canvas_idx ON canvas_edges (canvas_id);

-- one edge per ordered (from, to) pair within a canvas
CREATE UNIQUE INDEX IF NOT EXISTS canvas_edges_pair_idx
        ON canvas_edges (canvas_id, from_node_id, to_node_id);
`

// CreateSchema creates tables and indexes if they do not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return storeErr("create schema", err)
	}
	return nil
}
