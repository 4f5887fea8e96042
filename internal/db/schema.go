package db

const schemaSQL = `
-- ===========================================================================
-- DEVICE PROFILES -- the registry of named wake-and-play targets (spec §3).
-- ===========================================================================

CREATE TABLE IF NOT EXISTS device_profiles (
  name TEXT PRIMARY KEY,
  instance_name TEXT,
  spotify_device_names TEXT NOT NULL DEFAULT '[]',
  last_ip TEXT,
  last_port INTEGER,
  last_cpath TEXT,
  volume_preset INTEGER NOT NULL DEFAULT 35,
  max_wake_wait_s REAL,
  learned_name TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- ===========================================================================
-- CIRCUIT BREAKER STATE -- per-device failure tracking columns (spec §3,
-- §4.8). No code reads or writes this table; the breaker keeps its state
-- in memory.
-- ===========================================================================

CREATE TABLE IF NOT EXISTS circuit_breaker_state (
  device_name TEXT PRIMARY KEY,
  failure_count INTEGER NOT NULL DEFAULT 0,
  last_failure_at TEXT,
  is_open INTEGER NOT NULL DEFAULT 0,
  FOREIGN KEY (device_name) REFERENCES device_profiles(name)
);

-- ===========================================================================
-- ALARM PLAYS -- audit-trail columns for orchestration attempts. No code
-- writes to this table.
-- ===========================================================================

CREATE TABLE IF NOT EXISTS alarm_plays (
  alarm_id TEXT PRIMARY KEY,
  device_name TEXT NOT NULL,
  requested_at TEXT NOT NULL DEFAULT (datetime('now')),
  final_state TEXT NOT NULL,
  used_fallback INTEGER NOT NULL DEFAULT 0,
  bypassed_primary INTEGER NOT NULL DEFAULT 0,
  total_elapsed_ms INTEGER,
  phase_metrics_json TEXT NOT NULL DEFAULT '{}',
  error TEXT
);

CREATE INDEX IF NOT EXISTS idx_alarm_plays_device ON alarm_plays(device_name, requested_at);

-- ===========================================================================
-- DISCOVERY CACHE -- columns for mDNS sightings. No code reads or writes
-- this table; the registry's discovery cache lives in memory.
-- ===========================================================================

CREATE TABLE IF NOT EXISTS discovery_cache (
  instance_name TEXT PRIMARY KEY,
  ip TEXT NOT NULL,
  port INTEGER NOT NULL,
  cpath TEXT NOT NULL,
  friendly_name TEXT,
  seen_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
