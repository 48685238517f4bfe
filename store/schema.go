package store

// schema is the audit-log schema. actions is append-only: one row per
// executed side effect, partitioned by day for the summary rollup.
const schema = `
CREATE TABLE IF NOT EXISTS actions (
    id          TEXT PRIMARY KEY,
    comment_id  TEXT NOT NULL,
    post_id     TEXT NOT NULL,
    author      TEXT NOT NULL DEFAULT '',
    avatar_url  TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    intent      TEXT NOT NULL DEFAULT '',
    actions     TEXT NOT NULL DEFAULT '[]',
    detail      TEXT NOT NULL DEFAULT '',
    reply_text  TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_comment ON actions(comment_id);
CREATE INDEX IF NOT EXISTS idx_actions_time ON actions(created_at DESC);

CREATE TABLE IF NOT EXISTS daily_summaries (
    day         TEXT PRIMARY KEY,
    total       INTEGER NOT NULL DEFAULT 0,
    by_intent   TEXT NOT NULL DEFAULT '{}',
    by_action   TEXT NOT NULL DEFAULT '{}',
    created_at  INTEGER NOT NULL
);
`
