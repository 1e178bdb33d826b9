package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/persistence"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
	// tables to clean on whisper delete, order matters
	cleanTables []string
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	res := &DB{pool: pool, cleanTables: []string{"transformations", "audio_tracks"}}
	return res, nil
}

const whisperFields = `id, user_id, title, full_transcription, created_at, updated_at`

func scanWhisper(row pgx.Row) (*persistence.Whisper, error) {
	var res persistence.Whisper
	err := row.Scan(&res.ID, &res.UserID, &res.Title, &res.FullTranscription, &res.Created, &res.Updated)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// LoadWhisper loads whisper by ID
func (db *DB) LoadWhisper(ctx context.Context, id string) (*persistence.Whisper, error) {
	res, err := scanWhisper(db.pool.QueryRow(ctx, `SELECT `+whisperFields+` FROM whispers WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNotFound(err, "can't load whisper")
	}
	return res, nil
}

// CreateWhisper inserts whisper with its first audio track
func (db *DB) CreateWhisper(ctx context.Context, w *persistence.Whisper, track *persistence.AudioTrack) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO whispers(id, user_id, title, full_transcription, created_at, updated_at) 
		VALUES($1, $2, $3, $4, $5, $6)`, w.ID, w.UserID, w.Title, w.FullTranscription, w.Created, w.Created)
		if err != nil {
			return fmt.Errorf("can't insert whisper: %w", err)
		}
		if err := insertTrack(ctx, tx, track); err != nil {
			return err
		}
		return nil
	})
}

// AppendTrack inserts audio track and appends its text to the whisper's full transcription
func (db *DB) AppendTrack(ctx context.Context, track *persistence.AudioTrack) (*persistence.Whisper, error) {
	var res *persistence.Whisper
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		w, err := scanWhisper(tx.QueryRow(ctx, `SELECT `+whisperFields+` FROM whispers WHERE id = $1 FOR UPDATE`,
			track.WhisperID))
		if err != nil {
			return wrapNotFound(err, "can't lock whisper")
		}
		if err := insertTrack(ctx, tx, track); err != nil {
			return err
		}
		w.FullTranscription = w.FullTranscription + "\n" + track.PartialTranscription
		w.Updated = time.Now()
		_, err = tx.Exec(ctx, `UPDATE whispers SET full_transcription = $2, updated_at = $3 WHERE id = $1`,
			w.ID, w.FullTranscription, w.Updated)
		if err != nil {
			return fmt.Errorf("can't update whisper: %w", err)
		}
		res = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func insertTrack(ctx context.Context, tx pgx.Tx, track *persistence.AudioTrack) error {
	_, err := tx.Exec(ctx, `INSERT INTO audio_tracks(id, whisper_id, file_url, partial_transcription, language, created_at) 
	VALUES($1, $2, $3, $4, $5, $6)`, track.ID, track.WhisperID, track.FileURL, track.PartialTranscription,
		track.Language, track.Created)
	if err != nil {
		return fmt.Errorf("can't insert audio track: %w", err)
	}
	return nil
}

// ListWhispers returns user's whispers, newest first
func (db *DB) ListWhispers(ctx context.Context, userID string) ([]*persistence.Whisper, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+whisperFields+` FROM whispers WHERE user_id = $1 
		ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("can't list whispers: %w", err)
	}
	defer rows.Close()
	res := make([]*persistence.Whisper, 0)
	for rows.Next() {
		w, err := scanWhisper(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan whisper: %w", err)
		}
		res = append(res, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't list whispers: %w", err)
	}
	return res, nil
}

// LoadTracks returns whisper's audio tracks in creation order
func (db *DB) LoadTracks(ctx context.Context, whisperID string) ([]*persistence.AudioTrack, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, whisper_id, file_url, partial_transcription, language, created_at 
		FROM audio_tracks WHERE whisper_id = $1 ORDER BY created_at, id`, whisperID)
	if err != nil {
		return nil, fmt.Errorf("can't load audio tracks: %w", err)
	}
	defer rows.Close()
	res := make([]*persistence.AudioTrack, 0)
	for rows.Next() {
		var t persistence.AudioTrack
		if err := rows.Scan(&t.ID, &t.WhisperID, &t.FileURL, &t.PartialTranscription, &t.Language, &t.Created); err != nil {
			return nil, fmt.Errorf("can't scan audio track: %w", err)
		}
		res = append(res, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't load audio tracks: %w", err)
	}
	return res, nil
}

// LoadTransformations returns whisper's transformations in creation order
func (db *DB) LoadTransformations(ctx context.Context, whisperID string) ([]*persistence.Transformation, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, whisper_id, type, text, created_at 
		FROM transformations WHERE whisper_id = $1 ORDER BY created_at, id`, whisperID)
	if err != nil {
		return nil, fmt.Errorf("can't load transformations: %w", err)
	}
	defer rows.Close()
	res := make([]*persistence.Transformation, 0)
	for rows.Next() {
		var t persistence.Transformation
		if err := rows.Scan(&t.ID, &t.WhisperID, &t.Type, &t.Text, &t.Created); err != nil {
			return nil, fmt.Errorf("can't scan transformation: %w", err)
		}
		res = append(res, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't load transformations: %w", err)
	}
	return res, nil
}

// InsertTransformation saves transformation, does nothing if it already exists
func (db *DB) InsertTransformation(ctx context.Context, t *persistence.Transformation) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO transformations(id, whisper_id, type, text, created_at) 
	VALUES($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`, t.ID, t.WhisperID, t.Type, t.Text, t.Created)
	if err != nil {
		return fmt.Errorf("can't insert transformation: %w", err)
	}
	return nil
}

// UpdateTranscription overwrites whisper's full transcription
func (db *DB) UpdateTranscription(ctx context.Context, id, text string) error {
	return db.updateField(ctx, "full_transcription", id, text)
}

// UpdateTitle overwrites whisper's title
func (db *DB) UpdateTitle(ctx context.Context, id, title string) error {
	return db.updateField(ctx, "title", id, title)
}

func (db *DB) updateField(ctx context.Context, field, id, value string) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE whispers SET `+field+` = $2, updated_at = $3 WHERE id = $1`,
		id, value, time.Now())
	if err != nil {
		return fmt.Errorf("can't update %s: %w", field, err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("%w: can't update %s, no whisper %s", utils.ErrNotFound, field, id)
	}
	return nil
}

// DeleteWhisper deletes transformations, audio tracks and the whisper in one transaction
func (db *DB) DeleteWhisper(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		for _, t := range db.cleanTables {
			cmd, err := tx.Exec(ctx, `DELETE FROM `+t+` WHERE whisper_id = $1`, id)
			if err != nil {
				return fmt.Errorf("can't delete %s(%s): %w", id, t, err)
			}
			goapp.Log.Info().Str("ID", id).Str("table", t).Int64("rows", cmd.RowsAffected()).Msg("deleted")
		}
		cmd, err := tx.Exec(ctx, `DELETE FROM whispers WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("can't delete whisper %s: %w", id, err)
		}
		if cmd.RowsAffected() != 1 {
			return fmt.Errorf("%w: no whisper %s", utils.ErrNotFound, id)
		}
		return nil
	})
}

// ConsumeUsage adds amount to the daily counter if the result does not exceed limit
func (db *DB) ConsumeUsage(ctx context.Context, userID, resource string, day time.Time, amount, limit int) (bool, error) {
	var used int
	err := db.pool.QueryRow(ctx, `INSERT INTO usage(user_id, resource, day, used) 
		SELECT $1::text, $2::text, $3::date, $4::int WHERE $4::int <= $5::int
		ON CONFLICT (user_id, resource, day) DO UPDATE SET used = usage.used + EXCLUDED.used 
		WHERE usage.used + EXCLUDED.used <= $5::int
		RETURNING used`, userID, resource, day, amount, limit).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("can't update usage: %w", err)
	}
	goapp.Log.Debug().Str("user", userID).Str("resource", resource).Int("used", used).Msg("usage")
	return true, nil
}

// RestoreUsage gives back amount to the daily counter
func (db *DB) RestoreUsage(ctx context.Context, userID, resource string, day time.Time, amount int) error {
	_, err := db.pool.Exec(ctx, `UPDATE usage SET used = GREATEST(used - $4, 0) 
		WHERE user_id = $1 AND resource = $2 AND day = $3`, userID, resource, day, amount)
	if err != nil {
		return fmt.Errorf("can't restore usage: %w", err)
	}
	return nil
}

// LoadUsage returns used amount for the day
func (db *DB) LoadUsage(ctx context.Context, userID, resource string, day time.Time) (int, error) {
	var res int
	err := db.pool.QueryRow(ctx, `SELECT used FROM usage WHERE user_id = $1 AND resource = $2 AND day = $3`,
		userID, resource, day).Scan(&res)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("can't load usage: %w", err)
	}
	return res, nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, utils.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
