package persistence

import (
	"database/sql"
	"time"
)

type (

	//Whisper is a voice note aggregating one or more transcribed audio tracks
	Whisper struct {
		ID                string
		UserID            string
		Title             string
		FullTranscription string
		Created           time.Time
		Updated           time.Time
	}

	//AudioTrack is a transcript of one uploaded audio file
	AudioTrack struct {
		ID                   string
		WhisperID            string
		FileURL              string
		PartialTranscription string
		Language             sql.NullString
		Created              time.Time
	}

	//Transformation is a derived text of a whisper
	Transformation struct {
		ID        string
		WhisperID string
		Type      string
		Text      string
		Created   time.Time
	}

	//WhisperFull keeps whisper with related records
	WhisperFull struct {
		Whisper
		AudioTracks     []*AudioTrack
		Transformations []*Transformation
	}
)
