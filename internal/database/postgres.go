package database

import (
	"database/sql"
)

type PgTranscriptRepository struct {
	conn *sql.DB
}

func NewPgTranscriptRepository(dsn string) (*PgTranscriptRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &PgTranscriptRepository{conn: db}, nil
}

func (db *PgTranscriptRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgTranscriptRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
