package database

import (
	"encoding/json"
	"fmt"
)

const (
	saveTranscriptQuery = "INSERT INTO transcripts (room_id, customer_id, agent_id, created_at, closed_at, message_count, messages) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7) " +
		"ON CONFLICT (room_id) DO UPDATE SET agent_id = EXCLUDED.agent_id, closed_at = EXCLUDED.closed_at, " +
		"message_count = EXCLUDED.message_count, messages = EXCLUDED.messages"
	selectTranscriptColumns = "SELECT room_id, customer_id, agent_id, created_at, closed_at, messages FROM transcripts "
)

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row scanner) (Transcript, error) {
	var (
		t   Transcript
		raw []byte
	)
	if err := row.Scan(&t.RoomId, &t.CustomerId, &t.AgentId, &t.CreatedAt, &t.ClosedAt, &raw); err != nil {
		return Transcript{}, err
	}

	if err := json.Unmarshal(raw, &t.Messages); err != nil {
		return Transcript{}, fmt.Errorf("decode messages for %q: %w", t.RoomId, err)
	}

	return t, nil
}

// SaveTranscript stores t, replacing any earlier archive of the same room.
func (db *PgTranscriptRepository) SaveTranscript(t Transcript) error {
	raw, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("encode messages for %q: %w", t.RoomId, err)
	}

	_, err = db.conn.Exec(
		saveTranscriptQuery,
		t.RoomId,
		t.CustomerId,
		t.AgentId,
		t.CreatedAt.UTC(),
		t.ClosedAt.UTC(),
		len(t.Messages),
		raw,
	)

	return err
}

func (db *PgTranscriptRepository) GetTranscript(roomId string) (Transcript, error) {
	row := db.conn.QueryRow(selectTranscriptColumns+"WHERE room_id = $1", roomId)
	return scanTranscript(row)
}

func (db *PgTranscriptRepository) ListTranscriptsByCustomer(customerId string, limit int) ([]Transcript, error) {
	rows, err := db.conn.Query(
		selectTranscriptColumns+"WHERE customer_id = $1 ORDER BY closed_at DESC LIMIT $2",
		customerId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transcripts := []Transcript{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		transcripts = append(transcripts, t)
	}

	return transcripts, rows.Err()
}
