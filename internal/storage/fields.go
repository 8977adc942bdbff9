package storage

import (
	"database/sql"
	"errors"
	"time"
)

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return formatTime(t)
}

// SaveFieldConfiguration inserts or replaces the configuration of one field context.
func (s *Store) SaveFieldConfiguration(fc FieldConfiguration) error {
	_, err := s.db.Exec(`
		INSERT INTO field_configurations (field_id, context_id, jql, display_name, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(field_id, context_id) DO UPDATE SET
			jql = excluded.jql, display_name = excluded.display_name, updated_at = excluded.updated_at`,
		fc.FieldID, fc.ContextID, fc.JQL, fc.DisplayName, stamp(fc.UpdatedAt),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFieldConfiguration(r rowScanner) (FieldConfiguration, error) {
	var fc FieldConfiguration
	var updatedAt string
	if err := r.Scan(&fc.FieldID, &fc.ContextID, &fc.JQL, &fc.DisplayName, &updatedAt); err != nil {
		return FieldConfiguration{}, err
	}
	t, err := parseTime("updated_at", updatedAt)
	if err != nil {
		return FieldConfiguration{}, err
	}
	fc.UpdatedAt = t
	return fc, nil
}

// GetFieldConfiguration returns ErrNotFound when the context has never been saved.
func (s *Store) GetFieldConfiguration(fieldID, contextID string) (FieldConfiguration, error) {
	fc, err := scanFieldConfiguration(s.db.QueryRow(`
		SELECT field_id, context_id, jql, display_name, updated_at
		FROM field_configurations WHERE field_id = ? AND context_id = ?`, fieldID, contextID))
	if errors.Is(err, sql.ErrNoRows) {
		return FieldConfiguration{}, ErrNotFound
	}
	return fc, err
}

func (s *Store) ListFieldConfigurations() ([]FieldConfiguration, error) {
	rows, err := s.db.Query(`
		SELECT field_id, context_id, jql, display_name, updated_at
		FROM field_configurations ORDER BY field_id, context_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FieldConfiguration
	for rows.Next() {
		fc, err := scanFieldConfiguration(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, fc)
	}
	return results, rows.Err()
}

// SetFieldValue inserts or replaces the value of a field on one issue.
func (s *Store) SetFieldValue(v FieldValue) error {
	_, err := s.db.Exec(`
		INSERT INTO field_values (field_id, issue_key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(field_id, issue_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		v.FieldID, v.IssueKey, v.Value, stamp(v.UpdatedAt),
	)
	return err
}

// GetFieldValue returns ErrNotFound when no value was ever set on the issue.
func (s *Store) GetFieldValue(fieldID, issueKey string) (FieldValue, error) {
	var v FieldValue
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT field_id, issue_key, value, updated_at
		FROM field_values WHERE field_id = ? AND issue_key = ?`, fieldID, issueKey,
	).Scan(&v.FieldID, &v.IssueKey, &v.Value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return FieldValue{}, ErrNotFound
	}
	if err != nil {
		return FieldValue{}, err
	}
	if v.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return FieldValue{}, err
	}
	return v, nil
}
