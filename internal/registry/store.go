package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/strefethen/connect-alarm-go/internal/db"
)

// Store is the SQLite-backed persistence layer for DeviceProfiles, using
// the reader/writer split db.DBPair provides.
type Store struct {
	dbPair *db.DBPair
}

// NewStore wraps an already-initialized DBPair.
func NewStore(dbPair *db.DBPair) *Store {
	return &Store{dbPair: dbPair}
}

// Get loads a profile by name.
func (s *Store) Get(name string) (Profile, bool, error) {
	row := s.dbPair.Reader().QueryRow(`
		SELECT name, instance_name, spotify_device_names, last_ip, last_port,
		       last_cpath, volume_preset, max_wake_wait_s, learned_name,
		       created_at, updated_at
		FROM device_profiles WHERE name = ?`, name)

	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("get profile %q: %w", name, err)
	}
	return profile, true, nil
}

// Upsert creates or overwrites a profile's mutable fields.
func (s *Store) Upsert(p Profile) error {
	namesJSON, err := json.Marshal(p.SpotifyDeviceNames)
	if err != nil {
		return fmt.Errorf("marshal spotify_device_names: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.dbPair.Writer().Exec(`
		INSERT INTO device_profiles
			(name, instance_name, spotify_device_names, last_ip, last_port,
			 last_cpath, volume_preset, max_wake_wait_s, learned_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			instance_name = excluded.instance_name,
			spotify_device_names = excluded.spotify_device_names,
			last_ip = excluded.last_ip,
			last_port = excluded.last_port,
			last_cpath = excluded.last_cpath,
			volume_preset = excluded.volume_preset,
			max_wake_wait_s = excluded.max_wake_wait_s,
			learned_name = excluded.learned_name,
			updated_at = excluded.updated_at`,
		p.Name, p.InstanceName, string(namesJSON), nullableString(p.IP), nullableInt(p.Port),
		p.Cpath, p.VolumePreset, p.MaxWakeWaitS, p.LearnedName, now, now)
	if err != nil {
		return fmt.Errorf("upsert profile %q: %w", p.Name, err)
	}
	return nil
}

// AppendSpotifyDeviceName idempotently appends a learned cloud device name.
func (s *Store) AppendSpotifyDeviceName(name, spotifyDeviceName string) error {
	if strings.TrimSpace(spotifyDeviceName) == "" {
		return nil
	}
	profile, ok, err := s.Get(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("append spotify device name: profile %q not found", name)
	}
	for _, existing := range profile.SpotifyDeviceNames {
		if existing == spotifyDeviceName {
			return nil
		}
	}
	profile.SpotifyDeviceNames = append(profile.SpotifyDeviceNames, spotifyDeviceName)
	return s.Upsert(profile)
}

// UpdateInstanceName persists a freshly observed mDNS instance name.
func (s *Store) UpdateInstanceName(name, instanceName string) error {
	if strings.TrimSpace(instanceName) == "" {
		return nil
	}
	profile, ok, err := s.Get(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update instance name: profile %q not found", name)
	}
	profile.InstanceName = instanceName
	return s.Upsert(profile)
}

// UpdateEndpoint persists a freshly observed local control endpoint.
func (s *Store) UpdateEndpoint(name, ip string, port int, cpath string) error {
	profile, ok, err := s.Get(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update endpoint: profile %q not found", name)
	}
	profile.IP = ip
	profile.Port = port
	profile.Cpath = normalizeCpath(cpath)
	return s.Upsert(profile)
}

// All lists every known profile, ordered by name.
func (s *Store) All() ([]Profile, error) {
	rows, err := s.dbPair.Reader().Query(`
		SELECT name, instance_name, spotify_device_names, last_ip, last_port,
		       last_cpath, volume_preset, max_wake_wait_s, learned_name,
		       created_at, updated_at
		FROM device_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var namesJSON string
	var ip, cpath, learnedName sql.NullString
	var port sql.NullInt64
	var maxWakeWaitS sql.NullFloat64
	var createdAt, updatedAt string

	if err := row.Scan(&p.Name, &p.InstanceName, &namesJSON, &ip, &port, &cpath,
		&p.VolumePreset, &maxWakeWaitS, &learnedName, &createdAt, &updatedAt); err != nil {
		return Profile{}, err
	}

	if err := json.Unmarshal([]byte(namesJSON), &p.SpotifyDeviceNames); err != nil {
		return Profile{}, fmt.Errorf("unmarshal spotify_device_names: %w", err)
	}
	p.IP = ip.String
	p.Cpath = cpath.String
	p.LearnedName = learnedName.String
	if port.Valid {
		p.Port = int(port.Int64)
	}
	if maxWakeWaitS.Valid {
		v := maxWakeWaitS.Float64
		p.MaxWakeWaitS = &v
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
