package postgres

// Schema is applied on startup, the statements are idempotent. Quantities are
// numeric(14,3): tonnage with the scale-house's three decimals.
const schema = `
CREATE TABLE IF NOT EXISTS stock_items (
    id                 text PRIMARY KEY,
    commodity          text NOT NULL,
    quantity           numeric(14,3) NOT NULL,
    original_quantity  numeric(14,3) NOT NULL,
    bags               bigint NOT NULL,
    original_bags      bigint NOT NULL,
    delivered_quantity numeric(14,3) NOT NULL DEFAULT 0,
    warehouse_id       text NOT NULL DEFAULT '',
    lot_id             text NOT NULL DEFAULT '',
    status             text NOT NULL,
    created_at         timestamptz NOT NULL,
    updated_at         timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS stock_items_warehouse_idx ON stock_items (warehouse_id);
CREATE INDEX IF NOT EXISTS stock_items_lot_idx ON stock_items (lot_id);

CREATE TABLE IF NOT EXISTS stock_lots (
    id                 text PRIMARY KEY,
    name               text NOT NULL,
    item_ids           text[] NOT NULL,
    total_quantity     numeric(14,3) NOT NULL,
    total_bags         bigint NOT NULL,
    delivered_quantity numeric(14,3) NOT NULL DEFAULT 0,
    delivered_bags     bigint NOT NULL DEFAULT 0,
    remaining_quantity numeric(14,3) NOT NULL,
    remaining_bags     bigint NOT NULL,
    status             text NOT NULL,
    locked             boolean NOT NULL DEFAULT false,
    created_at         timestamptz NOT NULL,
    updated_at         timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS warehouses (
    id            text PRIMARY KEY,
    name          text NOT NULL,
    capacity      numeric(14,3) NOT NULL,
    current_stock numeric(14,3) NOT NULL DEFAULT 0,
    status        text NOT NULL,
    updated_at    timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS reservations (
    id                text PRIMARY KEY,
    item_id           text NOT NULL,
    item_type         text NOT NULL,
    quantity          numeric(14,3) NOT NULL,
    actor             text NOT NULL,
    reserved_at       timestamptz NOT NULL,
    expires_at        timestamptz NOT NULL,
    confirmed         boolean NOT NULL DEFAULT false,
    delivery_order_id text NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS reservations_item_idx ON reservations (item_id, item_type);
CREATE INDEX IF NOT EXISTS reservations_expiry_idx ON reservations (expires_at) WHERE NOT confirmed;

CREATE TABLE IF NOT EXISTS deliveries (
    id               text PRIMARY KEY,
    buyer            text NOT NULL,
    lines            jsonb NOT NULL,
    status           text NOT NULL,
    partial_delivery boolean NOT NULL DEFAULT false,
    planned_quantity numeric(14,3) NOT NULL,
    buyer_weight     numeric(14,3) NOT NULL DEFAULT 0,
    weight_loss      numeric(14,3) NOT NULL DEFAULT 0,
    cost             jsonb,
    tracking         jsonb NOT NULL DEFAULT '[]',
    created_at       timestamptz NOT NULL,
    updated_at       timestamptz NOT NULL,
    cancelled_at     timestamptz
);

CREATE TABLE IF NOT EXISTS outbox (
    id             bigserial PRIMARY KEY,
    aggregate_type text NOT NULL,
    aggregate_id   text NOT NULL,
    type           text NOT NULL,
    payload        bytea NOT NULL,
    headers        jsonb NOT NULL DEFAULT '{}',
    traceparent    text NOT NULL DEFAULT '',
    status         text NOT NULL DEFAULT 'pending',
    relay_id       text NOT NULL DEFAULT '',
    lease_until    timestamptz,
    retry_count    int NOT NULL DEFAULT 0,
    last_error     text,
    created_at     timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (id) WHERE status = 'pending';
`
