// Package cli implements the filesoldier command-line client: the share
// command runs the upload path, the fetch command drives the two-phase
// download session.
package cli

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	httpclient "github.com/speakingcat21/filesoldier/internal/client/client"
	"github.com/speakingcat21/filesoldier/internal/client/config"
	"github.com/speakingcat21/filesoldier/internal/client/models"
	"github.com/speakingcat21/filesoldier/internal/client/services"
	"github.com/speakingcat21/filesoldier/internal/cryptox"
	"github.com/speakingcat21/filesoldier/internal/logging"
)

type App struct {
	cfg    *config.Config
	client httpclient.Client
	log    logging.Logger
	out    io.Writer
	in     *bufio.Reader
}

func NewApp(cfg *config.Config, c httpclient.Client, log logging.Logger) *App {
	if log == nil {
		log = logging.NewNop()
	}
	return &App{
		cfg:    cfg,
		client: c,
		log:    log,
		out:    os.Stdout,
		in:     bufio.NewReader(os.Stdin),
	}
}

// Run dispatches the subcommand. Returns an error suitable for printing;
// usage problems are reported the same way.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: filesoldier <share|fetch> [flags]")
	}

	switch args[0] {
	case "share":
		return a.runShare(ctx, args[1:])
	case "fetch":
		return a.runFetch(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q (want share or fetch)", args[0])
	}
}

func (a *App) runShare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("share", flag.ContinueOnError)
	path := fs.String("file", "", "path of the file to share")
	withPassword := fs.Bool("password", false, "protect the file with a password instead of a link key")
	hint := fs.String("hint", "", "password hint stored with the record (plaintext, optional)")
	mask := fs.Bool("mask", false, "hide the real filename from the server")
	expire := fs.Duration("expire", 24*time.Hour, "time until the link expires")
	limit := fs.Int("limit", 0, "download limit (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("share: -file is required")
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var password []byte
	if *withPassword {
		password, err = GetPassword(a.out, "Password for the file: ")
		if err != nil {
			return err
		}
		defer cryptox.WipeBytes(password)
	}

	name := filepath.Base(*path)
	svc := services.NewUploadService(a.client, rand.Reader, a.log)
	res, err := svc.Upload(ctx, &services.UploadRequest{
		Name:          name,
		ContentType:   mime.TypeByExtension(filepath.Ext(name)),
		Data:          data,
		Password:      password,
		PasswordHint:  *hint,
		MaskFilename:  *mask,
		ExpiresIn:     *expire,
		DownloadLimit: *limit,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Shared as %s (id %s)\n", res.PublicLabel, res.FileID)
	if res.KeyFragment != "" {
		fmt.Fprintf(a.out, "Link: %s/d/%s#%s\n", a.cfg.ServerEndpointAddr, res.FileID, res.KeyFragment)
	} else {
		fmt.Fprintf(a.out, "Link: %s/d/%s (password required)\n", a.cfg.ServerEndpointAddr, res.FileID)
	}
	return nil
}

func (a *App) runFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	id := fs.String("id", "", "file id from the link")
	fragment := fs.String("key", "", "key fragment from the link (the part after '#')")
	out := fs.String("o", "", "output path (defaults to the decrypted filename)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("fetch: -id is required")
	}

	s := services.NewDownloadSession(a.client, rand.Reader, nil, a.log)

	record, err := s.LoadMetadata(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Found %s (%d bytes)\n", record.PublicLabel, record.Size)

	meta, err := a.unlock(ctx, s, record.PasswordHint, *fragment)
	if err != nil {
		return err
	}

	target := *out
	if target == "" {
		target = meta.Name
	}

	err = s.Fetch(ctx, func(plaintext []byte) error {
		return os.WriteFile(target, plaintext, 0o600)
	})
	if err != nil {
		if errors.Is(err, httpclient.ErrTokenExpired) {
			// The file is saved; only the server-side bookkeeping missed.
			fmt.Fprintf(a.out, "Saved %s (download confirmation expired)\n", target)
			return nil
		}
		return err
	}

	fmt.Fprintf(a.out, "Saved %s\n", target)
	return nil
}

// unlock acquires the key either from the fragment or, for
// password-protected files, by prompting until the password unwraps or
// the user gives up with an empty input.
func (a *App) unlock(ctx context.Context, s *services.DownloadSession, hint, fragment string) (*models.Metadata, error) {
	if !s.NeedsPassword() {
		if fragment == "" {
			var err error
			fragment, err = GetSimpleText(a.in, "Paste the link key (the part after '#')", a.out)
			if err != nil {
				return nil, err
			}
		}
		return s.UnlockWithFragment(ctx, fragment)
	}

	if hint != "" {
		fmt.Fprintf(a.out, "Hint: %s\n", hint)
	}

	for {
		password, err := GetPassword(a.out, "Password: ")
		if err != nil {
			return nil, err
		}
		if len(password) == 0 {
			return nil, errors.New("empty password, giving up")
		}

		meta, err := s.UnlockWithPassword(ctx, password)
		cryptox.WipeBytes(password)
		if err == nil {
			return meta, nil
		}
		if errors.Is(err, cryptox.ErrIncorrectPassword) {
			fmt.Fprintln(a.out, "Cannot decrypt with that password, try again.")
			continue
		}
		return nil, err
	}
}
