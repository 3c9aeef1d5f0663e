// Package config manages the account registry backing every mail operation.
// Accounts live in a single YAML document loaded through viper; the Manager
// is the only way code reads or mutates them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Protocol selects the retrieval variant for an account.
type Protocol string

const (
	ProtocolIMAP Protocol = "imap"
	ProtocolPOP3 Protocol = "pop3"

	// ProtocolSMTP marks a send-only account with no retrieval side.
	ProtocolSMTP Protocol = "smtp"
)

// Account holds the connection settings for one mailbox.
type Account struct {
	Address     string   `mapstructure:"address" yaml:"address"`
	Password    string   `mapstructure:"password" yaml:"password"`
	DisplayName string   `mapstructure:"display_name" yaml:"display_name"`
	Protocol    Protocol `mapstructure:"protocol" yaml:"protocol"`

	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort int    `mapstructure:"imap_port" yaml:"imap_port"`
	IMAPSSL  bool   `mapstructure:"imap_ssl" yaml:"imap_ssl"`

	POP3Host string `mapstructure:"pop3_host" yaml:"pop3_host"`
	POP3Port int    `mapstructure:"pop3_port" yaml:"pop3_port"`
	POP3SSL  bool   `mapstructure:"pop3_ssl" yaml:"pop3_ssl"`

	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" yaml:"smtp_port"`
	SMTPSSL  bool   `mapstructure:"smtp_ssl" yaml:"smtp_ssl"`

	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	DefaultFolder string `mapstructure:"default_folder" yaml:"default_folder"`
}

// FolderName derives the on-disk directory name for this account. The address
// is rewritten so it is filesystem-safe: '@' becomes '-' and '.' becomes '_'.
func (a Account) FolderName() string {
	name := strings.ReplaceAll(a.Address, "@", "-")
	return strings.ReplaceAll(name, ".", "_")
}

// Domain returns the part of the address after '@', or "" when the address is
// not a plausible mail address.
func (a Account) Domain() string {
	i := strings.LastIndex(a.Address, "@")
	if i < 0 || i == len(a.Address)-1 {
		return ""
	}
	return strings.ToLower(a.Address[i+1:])
}

// preset holds well-known server settings for a mail provider.
type preset struct {
	imapHost string
	imapPort int
	pop3Host string
	pop3Port int
	smtpHost string
	smtpPort int
}

var providerPresets = map[string]preset{
	"gmail.com":   {"imap.gmail.com", 993, "pop.gmail.com", 995, "smtp.gmail.com", 587},
	"outlook.com": {"outlook.office365.com", 993, "outlook.office365.com", 995, "smtp.office365.com", 587},
	"hotmail.com": {"outlook.office365.com", 993, "outlook.office365.com", 995, "smtp.office365.com", 587},
	"yahoo.com":   {"imap.mail.yahoo.com", 993, "pop.mail.yahoo.com", 995, "smtp.mail.yahoo.com", 587},
	"icloud.com":  {"imap.mail.me.com", 993, "pop.mail.me.com", 995, "smtp.mail.me.com", 587},
	"163.com":     {"imap.163.com", 993, "pop.163.com", 995, "smtp.163.com", 465},
	"126.com":     {"imap.126.com", 993, "pop.126.com", 995, "smtp.126.com", 465},
	"qq.com":      {"imap.qq.com", 993, "pop.qq.com", 995, "smtp.qq.com", 465},
}

// ApplyDefaults fills unset host/port fields from the provider preset table.
// Unknown domains fall back to the imap.<domain> convention. Explicit values
// are never overwritten.
func (a *Account) ApplyDefaults() {
	domain := a.Domain()
	p, ok := providerPresets[domain]
	if !ok && domain != "" {
		p = preset{
			imapHost: "imap." + domain, imapPort: 993,
			pop3Host: "pop." + domain, pop3Port: 995,
			smtpHost: "smtp." + domain, smtpPort: 587,
		}
		ok = true
	}
	if ok {
		if a.IMAPHost == "" {
			a.IMAPHost = p.imapHost
		}
		if a.IMAPPort == 0 {
			a.IMAPPort = p.imapPort
		}
		if a.POP3Host == "" {
			a.POP3Host = p.pop3Host
		}
		if a.POP3Port == 0 {
			a.POP3Port = p.pop3Port
		}
		if a.SMTPHost == "" {
			a.SMTPHost = p.smtpHost
		}
		if a.SMTPPort == 0 {
			a.SMTPPort = p.smtpPort
		}
	}
	if a.Protocol == "" {
		a.Protocol = ProtocolIMAP
	}
	if a.DefaultFolder == "" {
		a.DefaultFolder = "INBOX"
	}
}

// Validate reports the first structural problem with the account, or nil.
func (a Account) Validate() error {
	if a.Address == "" {
		return fmt.Errorf("account has no address")
	}
	if !strings.Contains(a.Address, "@") {
		return fmt.Errorf("address %q is not a mail address", a.Address)
	}
	if a.Password == "" {
		return fmt.Errorf("account %s has no password", a.Address)
	}
	switch a.Protocol {
	case ProtocolIMAP:
		if a.IMAPHost == "" || a.IMAPPort == 0 {
			return fmt.Errorf("account %s is missing imap server settings", a.Address)
		}
	case ProtocolPOP3:
		if a.POP3Host == "" || a.POP3Port == 0 {
			return fmt.Errorf("account %s is missing pop3 server settings", a.Address)
		}
	case ProtocolSMTP:
		if a.SMTPHost == "" || a.SMTPPort == 0 {
			return fmt.Errorf("account %s is missing smtp server settings", a.Address)
		}
	default:
		return fmt.Errorf("account %s has unknown protocol %q", a.Address, a.Protocol)
	}
	return nil
}

// Manager loads and persists the account registry. All methods are safe for
// concurrent use.
type Manager struct {
	mu       sync.RWMutex
	v        *viper.Viper
	path     string
	accounts map[string]Account
}

// NewManager builds a Manager bound to the config file at path. The file does
// not have to exist yet; Load treats a missing file as an empty registry.
func NewManager(path string) *Manager {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return &Manager{
		v:        v,
		path:     path,
		accounts: make(map[string]Account),
	}
}

// Load reads the registry from disk, replacing the in-memory state. A missing
// file yields an empty registry without error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			m.accounts = make(map[string]Account)
			return nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			m.accounts = make(map[string]Account)
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	var raw struct {
		Accounts []Account `mapstructure:"accounts"`
	}
	if err := m.v.Unmarshal(&raw); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	accounts := make(map[string]Account, len(raw.Accounts))
	for _, a := range raw.Accounts {
		a.ApplyDefaults()
		accounts[a.Address] = a
	}
	m.accounts = accounts
	return nil
}

// Reload re-reads the registry from disk.
func (m *Manager) Reload() error { return m.Load() }

// Save writes the registry back to disk, creating parent directories as
// needed.
func (m *Manager) Save() error {
	m.mu.RLock()
	list := m.sortedLocked()
	m.mu.RUnlock()

	if dir := filepath.Dir(m.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}

	out := make([]map[string]any, 0, len(list))
	for _, a := range list {
		out = append(out, map[string]any{
			"address":        a.Address,
			"password":       a.Password,
			"display_name":   a.DisplayName,
			"protocol":       string(a.Protocol),
			"imap_host":      a.IMAPHost,
			"imap_port":      a.IMAPPort,
			"imap_ssl":       a.IMAPSSL,
			"pop3_host":      a.POP3Host,
			"pop3_port":      a.POP3Port,
			"pop3_ssl":       a.POP3SSL,
			"smtp_host":      a.SMTPHost,
			"smtp_port":      a.SMTPPort,
			"smtp_ssl":       a.SMTPSSL,
			"enabled":        a.Enabled,
			"default_folder": a.DefaultFolder,
		})
	}
	m.v.Set("accounts", out)
	return m.v.WriteConfigAs(m.path)
}

// Add validates the account, applies provider defaults, and registers it.
// An existing account with the same address is replaced.
func (m *Manager) Add(a Account) error {
	a.ApplyDefaults()
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.accounts[a.Address] = a
	m.mu.Unlock()
	return nil
}

// Remove deletes the account by address. It reports whether the account
// existed.
func (m *Manager) Remove(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[address]; !ok {
		return false
	}
	delete(m.accounts, address)
	return true
}

// Get returns the account by address.
func (m *Manager) Get(address string) (Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[address]
	return a, ok
}

// List returns all accounts sorted by address.
func (m *Manager) List() []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

// EnabledAccounts returns the enabled accounts sorted by address.
func (m *Manager) EnabledAccounts() []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Account
	for _, a := range m.sortedLocked() {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

func (m *Manager) sortedLocked() []Account {
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
