// Package archive keeps a history of stored fit results in SQLite.
//
// Every Put appends a run: summary columns for listing plus the full entry
// encoded as a result container, so a run can be restored exactly or served
// as a constraint source for a later fit.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arloliu/yieldfit/container"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/fit"
	"github.com/arloliu/yieldfit/internal/options"
	"github.com/arloliu/yieldfit/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS fit_runs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	fit_type     TEXT NOT NULL,
	status       INTEGER NOT NULL,
	attempts     INTEGER NOT NULL,
	min_nll      REAL,
	reduced_chi2 REAL,
	nsig         REAL,
	nsig_error   REAL,
	created_at   INTEGER NOT NULL,
	record       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS fit_runs_name_created ON fit_runs (name, created_at DESC);
`

// Run is the summary of one archived fit.
type Run struct {
	ID         string
	Name       string
	FitTypeTag string
	// Status is -1 for an entry archived without a fit result.
	Status           int
	Attempts         int
	MinNLL           float64
	ReducedChiSquare float64
	SignalYield      float64
	SignalYieldError float64
	CreatedAt        time.Time
}

// Archive is a SQLite-backed history of fit results. It is safe for
// concurrent use.
type Archive struct {
	db            *sql.DB
	logger        *slog.Logger
	writerOptions []container.Option
	now           func() time.Time
}

// Option configures an Archive.
type Option = options.Option[*Archive]

// WithLogger sets the logger used for archive events.
func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(a *Archive) {
		if l != nil {
			a.logger = l
		}
	})
}

// WithContainerOptions sets the writer options of the encoded records.
func WithContainerOptions(opts ...container.Option) Option {
	return options.NoError(func(a *Archive) {
		a.writerOptions = append(a.writerOptions, opts...)
	})
}

// WithClock overrides the run creation time source.
func WithClock(now func() time.Time) Option {
	return options.NoError(func(a *Archive) {
		if now != nil {
			a.now = now
		}
	})
}

// Open opens or creates the archive database at path.
//
// Parameters:
//   - path: database file path
//   - opts: logger, container and clock options
//
// Returns:
//   - *Archive: open archive, to be closed by the caller
//   - error: ConfigurationError for an empty path, or a database error
func Open(path string, opts ...Option) (*Archive, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errs.Configuration("archive path is required")
	}

	a := &Archive{logger: slog.Default(), now: time.Now}
	if err := options.Apply(a, opts...); err != nil {
		return nil, err
	}
	if _, err := container.NewWriter(a.writerOptions...); err != nil {
		return nil, err
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	a.db = db

	return a, nil
}

// Close releases the database connection.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}

	return a.db.Close()
}

// Put appends r as a new run.
//
// Returns:
//   - string: the run ID
//   - error: encoding or database error
func (a *Archive) Put(ctx context.Context, r *store.StoredResult, includeSnapshot bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r == nil || strings.TrimSpace(r.Name) == "" {
		return "", errs.Configuration("archive: result name is required")
	}

	blob, err := store.Encode([]*store.StoredResult{r}, includeSnapshot, a.writerOptions...)
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}

	run := summarize(r)
	run.ID = uuid.NewString()
	run.CreatedAt = a.now().UTC()

	_, err = a.db.ExecContext(ctx, `
INSERT INTO fit_runs (
	id,
	name,
	fit_type,
	status,
	attempts,
	min_nll,
	reduced_chi2,
	nsig,
	nsig_error,
	created_at,
	record
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		run.ID,
		run.Name,
		run.FitTypeTag,
		run.Status,
		run.Attempts,
		run.MinNLL,
		run.ReducedChiSquare,
		run.SignalYield,
		run.SignalYieldError,
		run.CreatedAt.UnixMilli(),
		blob,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	a.logger.Debug("archived fit run", "id", run.ID, "name", run.Name, "bytes", len(blob))

	return run.ID, nil
}

func summarize(r *store.StoredResult) Run {
	run := Run{
		Name:             r.Name,
		FitTypeTag:       r.FitTypeTag,
		Status:           -1,
		ReducedChiSquare: r.ReducedChiSquare,
		SignalYield:      r.Yields["nsig"],
		SignalYieldError: r.YieldErrors["nsig"],
	}
	if r.Result != nil {
		run.Status = r.Result.Status()
		run.Attempts = r.Result.Attempts()
		run.MinNLL = r.Result.MinNLL()
	}

	return run
}

const runColumns = `id, name, fit_type, status, attempts, min_nll, reduced_chi2, nsig, nsig_error, created_at`

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans the summary columns followed by the extra destinations.
func scanRun(row scanner, extra ...any) (Run, error) {
	var (
		run                        Run
		minNLL, chi2, nsig, nsigEr sql.NullFloat64
		created                    int64
	)
	dest := []any{&run.ID, &run.Name, &run.FitTypeTag, &run.Status, &run.Attempts,
		&minNLL, &chi2, &nsig, &nsigEr, &created}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Run{}, err
	}
	run.MinNLL = minNLL.Float64
	run.ReducedChiSquare = chi2.Float64
	run.SignalYield = nsig.Float64
	run.SignalYieldError = nsigEr.Float64
	run.CreatedAt = time.UnixMilli(created).UTC()

	return run, nil
}

// List returns runs newest first. An empty name lists every result name.
//
// Parameters:
//   - name: result name filter, empty for all
//   - limit: maximum number of runs, > 0
func (a *Archive) List(ctx context.Context, name string, limit int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errs.Configuration("archive: limit must be greater than zero")
	}

	query := `SELECT ` + runColumns + ` FROM fit_runs`
	args := []any{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// Get restores the run with the given ID.
//
// Returns:
//   - Run: run summary
//   - *store.StoredResult: decoded entry
//   - error: ErrResultNotFound for an unknown ID, or a database or decoding error
func (a *Archive) Get(ctx context.Context, id string) (Run, *store.StoredResult, error) {
	return a.restore(ctx, `SELECT `+runColumns+`, record FROM fit_runs WHERE id = ?`, id)
}

// Latest restores the newest run archived under name.
func (a *Archive) Latest(ctx context.Context, name string) (Run, *store.StoredResult, error) {
	return a.restore(ctx, `SELECT `+runColumns+`, record FROM fit_runs WHERE name = ?
ORDER BY created_at DESC, rowid DESC LIMIT 1`, name)
}

func (a *Archive) restore(ctx context.Context, query, key string) (Run, *store.StoredResult, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, nil, err
	}

	var blob []byte
	run, err := scanRun(a.db.QueryRowContext(ctx, query, key), &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %q", errs.ErrResultNotFound, key)
	}
	if err != nil {
		return Run{}, nil, fmt.Errorf("query run: %w", err)
	}

	results, err := store.Decode(blob)
	if err != nil {
		return Run{}, nil, fmt.Errorf("decode run %s: %w", run.ID, err)
	}
	if len(results) != 1 {
		return Run{}, nil, fmt.Errorf("decode run %s: %d records, want 1", run.ID, len(results))
	}

	return run, results[0], nil
}

// Source returns a constraint source serving the newest fit result archived
// under name. The archive is queried when the source is loaded.
func (a *Archive) Source(name string) fit.LoaderSource {
	return fit.LoaderSource{
		Label: fmt.Sprintf("latest archived run of %q", name),
		Loader: func(ctx context.Context) (*fit.Result, error) {
			run, r, err := a.Latest(ctx, name)
			if err != nil {
				return nil, err
			}
			if r.Result == nil {
				return nil, fmt.Errorf("%w: run %s of %q has no fit result", errs.ErrResultNotFound, run.ID, name)
			}

			return r.Result, nil
		},
	}
}
