package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ASDFGHan123/unichat/internal/api"
	"github.com/ASDFGHan123/unichat/internal/backup"
	"github.com/ASDFGHan123/unichat/internal/bus"
	"github.com/ASDFGHan123/unichat/internal/config"
	"github.com/ASDFGHan123/unichat/internal/profile"
)

const defaultBaseURL = "http://localhost:8000/api"

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	limitFlag := flag.Int("limit", 50, "max entries for list commands")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	client := newClient(profileName)
	mgr := backup.NewManager(client, bus.New(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var err error
	switch args[0] {
	case "login":
		err = cmdLogin(ctx, client, profileName, args[1:])
	case "logout":
		err = cmdLogout(ctx, client, profileName)
	case "backup":
		err = cmdBackup(ctx, mgr, args[1:], *jsonFlag)
	case "audit":
		err = cmdAudit(ctx, client, args[1:], *jsonFlag, *limitFlag)
	case "users":
		err = cmdUsers(ctx, client, args[1:], *jsonFlag)
	case "settings":
		err = cmdSettings(ctx, client, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			fatal(fmt.Errorf("not authenticated, run: unichatctl login <username>"))
		}
		fatal(err)
	}
}

func newClient(profileName string) *api.Client {
	baseURL := defaultBaseURL
	if cfg, err := config.Load(profile.ConfigPath()); err == nil && cfg.Backend.BaseURL != "" {
		baseURL = cfg.Backend.BaseURL
	}
	c := api.New(baseURL, bus.New(), zap.NewNop())
	if raw, err := os.ReadFile(profile.TokenPath(profileName)); err == nil {
		c.SetToken(strings.TrimSpace(string(raw)))
	}
	return c
}

func cmdLogin(ctx context.Context, c *api.Client, profileName string, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: unichatctl login <username>")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}
	user, err := c.Login(ctx, args[0], strings.TrimRight(password, "\r\n"))
	if err != nil {
		return err
	}
	if err := profile.EnsureDir(profileName); err != nil {
		return err
	}
	if err := os.WriteFile(profile.TokenPath(profileName), []byte(c.Token()), 0600); err != nil {
		return err
	}
	fmt.Printf("logged in as %s\n", user.Username)
	return nil
}

func cmdLogout(ctx context.Context, c *api.Client, profileName string) error {
	err := c.Logout(ctx)
	if rmErr := os.Remove(profile.TokenPath(profileName)); rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: backend logout failed: %v\n", err)
	}
	fmt.Println("logged out")
	return nil
}

func cmdBackup(ctx context.Context, mgr *backup.Manager, args []string, jsonOut bool) error {
	if len(args) == 0 {
		return errors.New("usage: unichatctl backup <create|status|await|download|list|delete|restore>")
	}
	switch args[0] {
	case "create":
		if len(args) < 2 {
			return errors.New("usage: unichatctl backup create <full|users|messages|settings> [name]")
		}
		name := "manual-" + time.Now().Format("20060102-150405")
		if len(args) >= 3 {
			name = args[2]
		}
		b, err := mgr.Create(ctx, name, args[1])
		if err != nil {
			return err
		}
		return printBackup(b, jsonOut)
	case "status":
		if len(args) < 2 {
			return errors.New("usage: unichatctl backup status <id>")
		}
		b, err := mgr.Status(ctx, args[1])
		if err != nil {
			return err
		}
		return printBackup(b, jsonOut)
	case "await":
		if len(args) < 2 {
			return errors.New("usage: unichatctl backup await <id>")
		}
		b, err := mgr.Await(ctx, args[1])
		if errors.Is(err, backup.ErrPollExhausted) {
			fmt.Fprintln(os.Stderr, "warning: backup still running after 30s")
			err = nil
		}
		if err != nil {
			return err
		}
		return printBackup(b, jsonOut)
	case "download":
		if len(args) < 3 {
			return errors.New("usage: unichatctl backup download <id> <file>")
		}
		data, err := mgr.Download(ctx, args[1])
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[2], data, 0600); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", len(data), args[2])
		return nil
	case "list":
		backups, err := mgr.List(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(backups)
		}
		fmt.Printf("%-36s %-20s %-10s %-12s %10s\n", "ID", "NAME", "TYPE", "STATUS", "SIZE")
		for _, b := range backups {
			fmt.Printf("%-36s %-20s %-10s %-12s %10d\n", b.ID, b.Name, b.BackupType, b.Status, b.Size)
		}
		return nil
	case "delete":
		if len(args) < 2 {
			return errors.New("usage: unichatctl backup delete <id>")
		}
		if err := mgr.Delete(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	case "restore":
		if len(args) < 2 {
			return errors.New("usage: unichatctl backup restore <id>")
		}
		if err := mgr.Restore(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("restore started")
		return nil
	default:
		return fmt.Errorf("unknown backup command: %s", args[0])
	}
}

func cmdAudit(ctx context.Context, c *api.Client, args []string, jsonOut bool, limit int) error {
	if len(args) == 0 || args[0] != "list" {
		return errors.New("usage: unichatctl audit list")
	}
	entries, err := c.ListAuditLog(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	for _, e := range entries {
		fmt.Printf("%s  %-16s %-24s %s\n",
			e.Timestamp.Format(time.RFC3339), e.Actor, e.Action, e.Detail)
	}
	return nil
}

func cmdUsers(ctx context.Context, c *api.Client, args []string, jsonOut bool) error {
	if len(args) == 0 || args[0] != "list" {
		return errors.New("usage: unichatctl users list")
	}
	users, err := c.ListUsers(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(users)
	}
	fmt.Printf("%-36s %-20s %-10s %s\n", "ID", "USERNAME", "STATUS", "ROLE")
	for _, u := range users {
		fmt.Printf("%-36s %-20s %-10s %s\n", u.ID, u.Username, u.Status, u.Role)
	}
	return nil
}

func cmdSettings(ctx context.Context, c *api.Client, args []string, jsonOut bool) error {
	if len(args) == 0 {
		return errors.New("usage: unichatctl settings <show|set key=value ...>")
	}
	switch args[0] {
	case "show":
		s, err := c.GetSettings(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(s)
		}
		fmt.Printf("site_name:            %s\n", s.SiteName)
		fmt.Printf("retention_days:       %d\n", s.RetentionDays)
		fmt.Printf("auto_backup:          %t\n", s.AutoBackup)
		fmt.Printf("auto_backup_interval: %d\n", s.AutoBackupInterval)
		fmt.Printf("max_upload_size:      %d\n", s.MaxUploadSize)
		return nil
	case "set":
		if len(args) < 2 {
			return errors.New("usage: unichatctl settings set key=value ...")
		}
		s, err := c.GetSettings(ctx)
		if err != nil {
			return err
		}
		for _, pair := range args[1:] {
			if err := applySetting(s, pair); err != nil {
				return err
			}
		}
		if err := c.UpdateSettings(ctx, s); err != nil {
			return err
		}
		fmt.Println("settings updated")
		return nil
	default:
		return fmt.Errorf("unknown settings command: %s", args[0])
	}
}

func applySetting(s *api.Settings, pair string) error {
	key, value, ok := strings.Cut(pair, "=")
	if !ok {
		return fmt.Errorf("expected key=value, got %q", pair)
	}
	switch key {
	case "site_name":
		s.SiteName = value
	case "retention_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("retention_days: %w", err)
		}
		s.RetentionDays = n
	case "auto_backup":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("auto_backup: %w", err)
		}
		s.AutoBackup = b
	case "auto_backup_interval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("auto_backup_interval: %w", err)
		}
		s.AutoBackupInterval = n
	case "max_upload_size":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("max_upload_size: %w", err)
		}
		s.MaxUploadSize = n
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}

func printBackup(b *api.Backup, jsonOut bool) error {
	if jsonOut {
		return printJSON(b)
	}
	fmt.Printf("id:      %s\n", b.ID)
	fmt.Printf("name:    %s\n", b.Name)
	fmt.Printf("type:    %s\n", b.BackupType)
	fmt.Printf("status:  %s\n", b.Status)
	fmt.Printf("size:    %d\n", b.Size)
	fmt.Printf("records: %d\n", b.RecordCount)
	if b.CompletedAt != nil {
		fmt.Printf("done:    %s\n", b.CompletedAt.Format(time.RFC3339))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: unichatctl [--profile <name>] [--json] [--limit <n>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <username>                  Authenticate and store a token")
	fmt.Fprintln(os.Stderr, "  logout                            Invalidate the stored token")
	fmt.Fprintln(os.Stderr, "  backup create <type> [name]       Start a backup job")
	fmt.Fprintln(os.Stderr, "  backup status <id>                Show a backup job")
	fmt.Fprintln(os.Stderr, "  backup await <id>                 Poll a job until done (max 30s)")
	fmt.Fprintln(os.Stderr, "  backup download <id> <file>       Download a completed backup")
	fmt.Fprintln(os.Stderr, "  backup list                       List backup records")
	fmt.Fprintln(os.Stderr, "  backup delete <id>                Delete a backup")
	fmt.Fprintln(os.Stderr, "  backup restore <id>               Restore from a backup")
	fmt.Fprintln(os.Stderr, "  audit list                        Show recent audit log entries")
	fmt.Fprintln(os.Stderr, "  users list                        List users")
	fmt.Fprintln(os.Stderr, "  settings show                     Show system settings")
	fmt.Fprintln(os.Stderr, "  settings set key=value ...        Update system settings")
}
