package database

type TranscriptRepository interface {
	Ping() error
	SaveTranscript(t Transcript) error
	GetTranscript(roomId string) (Transcript, error)
	ListTranscriptsByCustomer(customerId string, limit int) ([]Transcript, error)
}
