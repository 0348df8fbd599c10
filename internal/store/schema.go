package store

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jornadas (
		id            TEXT PRIMARY KEY,
		number        INTEGER NOT NULL,
		season        TEXT NOT NULL,
		is_historical INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		UNIQUE (number, season)
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id          TEXT PRIMARY KEY,
		jornada_id  TEXT NOT NULL REFERENCES jornadas(id) ON DELETE CASCADE,
		match_order INTEGER NOT NULL,
		home_team   TEXT NOT NULL,
		away_team   TEXT NOT NULL,
		result_1x2  TEXT,
		result_home TEXT,
		result_away TEXT,
		UNIQUE (jornada_id, match_order)
	)`,
	`CREATE TABLE IF NOT EXISTS points_history (
		player     TEXT NOT NULL,
		jornada_id TEXT NOT NULL REFERENCES jornadas(id) ON DELETE CASCADE,
		points     INTEGER NOT NULL,
		PRIMARY KEY (player, jornada_id)
	)`,
	`CREATE TABLE IF NOT EXISTS predictions (
		player         TEXT NOT NULL,
		match_id       TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
		predicted_1x2  TEXT,
		predicted_home TEXT,
		predicted_away TEXT,
		PRIMARY KEY (player, match_id)
	)`,
	`CREATE TABLE IF NOT EXISTS prizes (
		id         TEXT PRIMARY KEY,
		jornada_id TEXT NOT NULL REFERENCES jornadas(id) ON DELETE CASCADE,
		player     TEXT NOT NULL,
		amount     DOUBLE PRECISION NOT NULL,
		notes      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
}
