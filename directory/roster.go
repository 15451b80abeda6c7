package directory

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RosterConfig points at a remote roster: a JSON array of students served
// over HTTPS behind basic auth.
type RosterConfig struct {
	URL      string        `yaml:"url"`
	CAFile   string        `yaml:"ca_file"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ImportResult counts what Import did.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ReadRoster decodes a JSON array of students.
func ReadRoster(r io.Reader) ([]Student, error) {
	var students []Student
	if err := json.NewDecoder(r).Decode(&students); err != nil {
		return nil, errors.Wrap(err, "decode roster failed")
	}
	return students, nil
}

// WriteRoster encodes students as an indented JSON array.
func WriteRoster(w io.Writer, students []Student) error {
	if students == nil {
		students = []Student{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(students), "encode roster failed")
}

// FetchRoster downloads the roster at cfg.URL.
func FetchRoster(ctx context.Context, cfg RosterConfig) ([]Student, error) {
	if cfg.URL == "" {
		return nil, errors.New("roster url not configured")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "read roster CA cert failed")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.Errorf("no certificates in %s", cfg.CAFile)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Transport: transport, Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create roster request failed")
	}
	if cfg.Username != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "roster request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("roster request: unexpected status %s", resp.Status)
	}
	return ReadRoster(resp.Body)
}

// Import upserts students by ID. Records without an ID are created. It
// stops at the first failure, leaving earlier records applied.
func (s *Store) Import(ctx context.Context, students []Student) (ImportResult, error) {
	var res ImportResult
	for _, st := range students {
		st.RFIDCard = strings.TrimSpace(st.RFIDCard)

		if st.ID != "" {
			existing, err := s.GetStudent(ctx, st.ID)
			switch {
			case err == nil:
				if st.EnrollmentDate.IsZero() {
					st.EnrollmentDate = existing.EnrollmentDate
				}
				if _, err := s.UpdateStudent(ctx, st); err != nil {
					return res, errors.Wrapf(err, "import %s", st.ID)
				}
				res.Updated++
				continue
			case !errors.Is(err, ErrNotFound):
				return res, err
			}
		}

		created, err := s.CreateStudent(ctx, st)
		if err != nil {
			return res, errors.Wrapf(err, "import %s", st.FullName())
		}
		log.WithField("id", created.ID).Debug("Imported student")
		res.Created++
	}
	return res, nil
}
