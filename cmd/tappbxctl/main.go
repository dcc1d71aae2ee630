// Command tappbxctl runs one-shot management tasks against the control
// plane database: seeding defaults, account creation, housekeeping and
// backups. It talks to the store directly and needs no running server.
package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/httapi"
)

const usage = `usage: tappbxctl <command> [args]

commands:
  loaddefaults                                seed default settings and switch variables
  createdomain <name>                         create a tenant
  createuser <domain> <username> <password>   create an admin user
  setdefaultsetting <category> <subcategory> <value>
  setswitchvariable <category> <name> <value>
  housekeeping                                age firewall rows, sweep sessions, prune login attempts
  backupdb <dest.db>                          snapshot the database
  backupfiles <dest.tar.gz>                   archive the data directory files

The data directory comes from TAPPBX_DATA_DIR (default ./data).`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	dataDir := os.Getenv("TAPPBX_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	cmd, args := os.Args[1], os.Args[2:]
	if err := run(context.Background(), dataDir, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "tappbxctl %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dataDir, cmd string, args []string) error {
	if cmd == "help" {
		fmt.Println(usage)
		return nil
	}

	db, err := database.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	switch cmd {
	case "loaddefaults":
		return loadDefaults(ctx, db)
	case "createdomain":
		if len(args) != 1 {
			return fmt.Errorf("expected <name>")
		}
		return createDomain(ctx, db, args[0])
	case "createuser":
		if len(args) != 3 {
			return fmt.Errorf("expected <domain> <username> <password>")
		}
		return createUser(ctx, db, args[0], args[1], args[2])
	case "setdefaultsetting":
		if len(args) != 3 {
			return fmt.Errorf("expected <category> <subcategory> <value>")
		}
		return setDefaultSetting(ctx, db, args[0], args[1], args[2])
	case "setswitchvariable":
		if len(args) != 3 {
			return fmt.Errorf("expected <category> <name> <value>")
		}
		return setSwitchVariable(ctx, db, args[0], args[1], args[2])
	case "housekeeping":
		return housekeeping(ctx, db)
	case "backupdb":
		if len(args) != 1 {
			return fmt.Errorf("expected <dest.db>")
		}
		return backupDB(ctx, db, args[0])
	case "backupfiles":
		if len(args) != 1 {
			return fmt.Errorf("expected <dest.tar.gz>")
		}
		return backupFiles(dataDir, args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// defaultSettings are the global rows loaddefaults seeds. Existing rows
// with the same (category, subcategory) are left alone.
var defaultSettings = []struct {
	category, subcategory, typ, value, description string
}{
	{"domain", "language", models.TypeText, "en", "Default language"},
	{"domain", "dialect", models.TypeText, "us", "Default dialect"},
	{"domain", "voice", models.TypeText, "callie", "Default TTS voice"},
	{"switch", "sounds-dir", models.TypeText, "/usr/share/freeswitch/sounds", "Switch sounds directory"},
	{"switch", "httapi-url", models.TypeText, "http://127.0.0.1:8008/app/httapi", "HTTAPI callback base URL"},
	{"provision", "http-auth-realm", models.TypeText, "provision", "Device provisioning auth realm"},
	{"security", "max-fail-attempts", models.TypeNumeric, "5", "Login failures before a block"},
	{"destinations", "dial-string", models.TypeText,
		"{sip_invite_domain=${domain_name}}${sofia_contact(*/${dialed_user}@${domain_name})}",
		"Default user dial string"},
}

var defaultVariables = []struct {
	category, name, value string
	sequence              int
}{
	{"Defaults", "default_password", "2never4get1", 10},
	{"Defaults", "hold_music", "local_stream://default", 20},
	{"Sound", "sound_prefix", "$${sounds_dir}/en/us/callie", 10},
	{"SIP", "external_sip_ip", "auto-nat", 10},
	{"SIP", "external_rtp_ip", "auto-nat", 20},
	{"Codecs", "global_codec_prefs", "OPUS,G722,PCMU,PCMA", 10},
	{"Codecs", "outbound_codec_prefs", "PCMU,PCMA", 20},
}

func loadDefaults(ctx context.Context, db *database.DB) error {
	settingsRepo := database.NewSettingRepository(db)
	for _, d := range defaultSettings {
		existing, err := settingsRepo.Lookup(ctx, d.category, d.subcategory)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		err = settingsRepo.Create(ctx, &models.Setting{
			ID:          uuid.NewString(),
			Scope:       models.ScopeGlobal,
			Category:    d.category,
			Subcategory: d.subcategory,
			Type:        d.typ,
			Value:       d.value,
			Enabled:     true,
			Description: d.description,
		})
		if err != nil {
			return fmt.Errorf("seeding %s/%s: %w", d.category, d.subcategory, err)
		}
	}

	vars := database.NewSwitchVariableRepository(db)
	for _, v := range defaultVariables {
		err := vars.Upsert(ctx, &models.SwitchVariable{
			ID:       uuid.NewString(),
			Category: v.category,
			Name:     v.name,
			Value:    v.value,
			Command:  "set",
			Enabled:  true,
			Sequence: v.sequence,
		})
		if err != nil {
			return fmt.Errorf("seeding variable %s/%s: %w", v.category, v.name, err)
		}
	}

	slog.Info("defaults loaded",
		"settings", len(defaultSettings), "variables", len(defaultVariables))
	return nil
}

func createDomain(ctx context.Context, db *database.DB, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("domain name is required")
	}
	domains := database.NewDomainRepository(db)
	if existing, err := domains.GetByName(ctx, name); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("domain %s already exists", name)
	}
	d := &models.Domain{ID: uuid.NewString(), Name: name, Enabled: true}
	if err := domains.Create(ctx, d); err != nil {
		return err
	}
	fmt.Println(d.ID)
	return nil
}

func createUser(ctx context.Context, db *database.DB, domain, username, password string) error {
	domains := database.NewDomainRepository(db)
	dom, err := domains.GetByName(ctx, strings.ToLower(domain))
	if err != nil {
		return err
	}
	if dom == nil {
		return fmt.Errorf("domain %s not found", domain)
	}

	users := database.NewUserRepository(db)
	if existing, err := users.GetByUsername(ctx, dom.ID, username); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("user %s@%s already exists", username, domain)
	}

	hash, err := database.HashPassword(password)
	if err != nil {
		return err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		DomainID:     dom.ID,
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      true,
		Enabled:      true,
	}
	if err := users.Create(ctx, u); err != nil {
		return err
	}
	fmt.Println(u.ID)
	return nil
}

func setDefaultSetting(ctx context.Context, db *database.DB, category, subcategory, value string) error {
	typ := models.TypeText
	if _, err := strconv.Atoi(value); err == nil {
		typ = models.TypeNumeric
	}
	return database.NewSettingRepository(db).Upsert(ctx, &models.Setting{
		ID:          uuid.NewString(),
		Scope:       models.ScopeGlobal,
		Category:    category,
		Subcategory: subcategory,
		Type:        typ,
		Value:       value,
		Enabled:     true,
	})
}

func setSwitchVariable(ctx context.Context, db *database.DB, category, name, value string) error {
	return database.NewSwitchVariableRepository(db).Upsert(ctx, &models.SwitchVariable{
		ID:       uuid.NewString(),
		Category: category,
		Name:     name,
		Value:    value,
		Command:  "set",
		Enabled:  true,
		Sequence: 10,
	})
}

// loginAttemptWindow bounds how long failure counters survive without a
// fresh failure.
const loginAttemptWindow = 24 * time.Hour

func housekeeping(ctx context.Context, db *database.DB) error {
	now := time.Now()

	aged, err := database.NewFirewallRepository(db).MarkObsolete(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("aging firewall rows: %w", err)
	}

	swept, err := database.NewHTTAPISessionRepository(db).DeleteOlderThan(ctx, now.Add(-httapi.SessionMaxAge))
	if err != nil {
		return fmt.Errorf("sweeping httapi sessions: %w", err)
	}

	pruned, err := database.NewLoginAttemptRepository(db).DeleteOlderThan(ctx, now.Add(-loginAttemptWindow))
	if err != nil {
		return fmt.Errorf("pruning login attempts: %w", err)
	}

	slog.Info("housekeeping done",
		"firewall_aged", aged, "sessions_swept", swept, "attempts_pruned", pruned)
	return nil
}

func backupDB(ctx context.Context, db *database.DB, dest string) error {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("%s already exists", dest)
	}
	// VACUUM INTO writes a consistent snapshot without blocking writers.
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", abs); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	slog.Info("database backed up", "dest", abs)
	return nil
}

func backupFiles(dataDir, dest string) error {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	count := 0
	err = filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		// The live database and its WAL belong to backupdb.
		if strings.HasPrefix(filepath.Base(path), "tappbx.db") {
			return nil
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("archiving %s: %w", dataDir, err)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	slog.Info("files backed up", "dest", dest, "files", count)
	return nil
}
