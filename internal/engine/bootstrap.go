package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/xo/dburl"

	"db-merge/internal/dialect"
)

// RetryPolicy controls how long Bootstrap waits for a freshly created database.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

var DefaultRetry = RetryPolicy{MaxAttempts: 10, Interval: 2 * time.Second}

// Bootstrap creates the target database when it does not exist yet.
type Bootstrap struct {
	Syntax dialect.Syntax
	Retry  RetryPolicy
	Logger *slog.Logger
}

// Ensure returns nil once the database named by rawURL accepts connections. An
// unreachable target is created through the server's admin database and polled
// until it answers or the retry policy is exhausted.
func (b *Bootstrap) Ensure(ctx context.Context, rawURL string) error {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	u, err := dburl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse database url: %w", err)
	}

	perr := ping(ctx, u.URL.String())
	if perr == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := DatabaseName(&u.URL)
	if name == "" {
		return &BootstrapError{Err: fmt.Errorf("url names no database: %w", perr)}
	}
	if b.Syntax.CreateDatabase(name) == "" {
		return &BootstrapError{Database: name, Err: fmt.Errorf("%w: %s", ErrBootstrapUnsupported, b.Syntax.Name())}
	}
	logger.Info("target database unreachable, creating it", "database", name, "err", perr)

	admin := AdminURL(&u.URL, b.Syntax.AdminDatabase())
	if err := b.create(ctx, admin.String(), name); err != nil {
		return &BootstrapError{Database: name, Err: err}
	}

	retry := b.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetry
	}
	attempts, err := poll(ctx, retry, func() error { return ping(ctx, u.URL.String()) })
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return &BootstrapError{Database: name, Attempts: attempts, Err: err}
	}
	logger.Info("database created", "database", name, "attempts", attempts)
	return nil
}

// poll calls try until it succeeds or retry.MaxAttempts calls have failed. It
// sleeps only between attempts.
func poll(ctx context.Context, retry RetryPolicy, try func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		if err = try(); err == nil {
			return attempt, nil
		}
		if attempt == retry.MaxAttempts {
			return attempt, err
		}
		if serr := sleep(ctx, retry.Interval); serr != nil {
			return attempt, serr
		}
	}
	return 0, err
}

func (b *Bootstrap) create(ctx context.Context, adminURL, name string) error {
	db, err := dburl.Open(adminURL)
	if err != nil {
		return fmt.Errorf("failed to open admin database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, b.Syntax.CreateDatabase(name)); err != nil {
		if b.Syntax.IsPermissionError(err) {
			return &PermissionError{Command: b.Syntax.CreateDatabase(name), Err: err}
		}
		return err
	}
	return nil
}

func ping(ctx context.Context, rawURL string) error {
	db, err := dburl.Open(rawURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DatabaseName returns the database a connection url selects: the "database" query
// parameter when present, else the last path segment.
func DatabaseName(u *url.URL) string {
	if name := u.Query().Get("database"); name != "" {
		return name
	}
	path := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// AdminURL returns a copy of u that selects admin instead of the target database.
func AdminURL(u *url.URL, admin string) *url.URL {
	out := *u
	q := out.Query()
	if q.Get("database") != "" {
		q.Set("database", admin)
		out.RawQuery = q.Encode()
		return &out
	}
	path := strings.Trim(out.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[:i+1] + admin
	} else {
		path = admin
	}
	out.Path = "/" + path
	out.RawPath = ""
	return &out
}

// IsBootstrapError reports whether err came from Ensure failing to provide the database.
func IsBootstrapError(err error) bool {
	var be *BootstrapError
	return errors.As(err, &be)
}
