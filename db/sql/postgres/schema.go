package postgres

// BookingSchema holds the DDL the booking repository expects, in apply order.
// The unique index on (user_id, hospital_id, date) backs the one-request-per-
// day rule at the storage level.
var BookingSchema = []string{
	`CREATE TABLE IF NOT EXISTS hospitals (
		id    TEXT PRIMARY KEY,
		name  TEXT NOT NULL,
		email TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		hospital_id   TEXT NOT NULL REFERENCES hospitals (id),
		patient_name  TEXT NOT NULL,
		patient_email TEXT NOT NULL,
		date          DATE NOT NULL,
		time          TEXT NOT NULL,
		reason        TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_user_hospital_date
		ON appointments (user_id, hospital_id, date)`,
	`CREATE INDEX IF NOT EXISTS appointments_hospital
		ON appointments (hospital_id)`,
	`CREATE INDEX IF NOT EXISTS appointments_user
		ON appointments (user_id)`,
}
