package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Outcome markers recorded in the buy/sell/fail columns.
const (
	MarkYes = "YES"
	MarkNo  = "NO"
	// MarkAmbiguous records a trade whose transaction was broadcast but
	// whose balance delta never confirmed. The funds may or may not have
	// moved; the row is flagged instead of guessed at.
	MarkAmbiguous = "XXX"
)

const (
	activeFile    = "transactions.json"
	archivePrefix = "transactions_"
	archiveDayFmt = "20060102"
	entryTimeFmt  = "2006-01-02 15:04:05"
	lookbackDays  = 2
)

// Entry is one position's row in the trade log. Buy and Sell carry the
// YES/NO/XXX markers; Fail carries the human-readable abort reason and
// stays empty for positions that closed cleanly.
type Entry struct {
	Time        string `json:"time"`
	PostHash    string `json:"post_hash"`
	WalletName  string `json:"wallet_name"`
	TokenSymbol string `json:"token_symbol"`
	TokenHash   string `json:"token_hash"`
	AmountOfETH string `json:"amount_of_eth"`
	Buy         string `json:"buy"`
	BuyTx       string `json:"buy_tx"`
	Sell        string `json:"sell"`
	SellTx      string `json:"sell_tx"`
	Fail        string `json:"fail"`
	ProfitLoss  string `json:"profit_loss"`
}

// Update carries the fields an Upsert call wants to change. Nil fields
// leave the stored value untouched.
type Update struct {
	WalletName  *string
	TokenSymbol *string
	TokenHash   *string
	AmountOfETH *string
	Buy         *string
	BuyTx       *string
	Sell        *string
	SellTx      *string
	Fail        *string
	ProfitLoss  *string
}

// String is a convenience for building Update literals.
func String(s string) *string { return &s }

// Ledger persists trade entries as JSON files under dir, rotating the
// active file at local midnight and pruning archives past retention.
type Ledger struct {
	mu        sync.Mutex
	dir       string
	retention int
	now       func() time.Time
}

// New opens a ledger rooted at dir, creating it if needed.
func New(dir string, retentionDays int) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger dir: %w", err)
	}
	return &Ledger{
		dir:       dir,
		retention: retentionDays,
		now:       time.Now,
	}, nil
}

// Upsert merges the update into the entry keyed by postHash, creating
// the entry on first sight. Entries already rotated into the last two
// day archives are pulled back into the active file first, so a sell
// that lands after midnight still completes its original row.
func (l *Ledger) Upsert(postHash string, u Update) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotate(); err != nil {
		return err
	}

	active := filepath.Join(l.dir, activeFile)
	entries, err := readEntries(active)
	if err != nil {
		return err
	}

	idx := findEntry(entries, postHash)
	if idx < 0 {
		relocated, err := l.pullFromArchives(postHash)
		if err != nil {
			return err
		}
		if relocated != nil {
			entries = append(entries, *relocated)
			idx = len(entries) - 1
		}
	}

	if idx < 0 {
		entries = append(entries, Entry{
			Time:     l.now().Format(entryTimeFmt),
			PostHash: postHash,
		})
		idx = len(entries) - 1
	}

	applyUpdate(&entries[idx], u)
	return writeEntries(active, entries)
}

// Lookup returns the entry for postHash from the active file.
func (l *Ledger) Lookup(postHash string) (Entry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := readEntries(filepath.Join(l.dir, activeFile))
	if err != nil {
		return Entry{}, false, err
	}
	if idx := findEntry(entries, postHash); idx >= 0 {
		return entries[idx], true, nil
	}
	return Entry{}, false, nil
}

// rotate archives the active file when its last write happened on an
// earlier local day, then prunes expired archives.
func (l *Ledger) rotate() error {
	active := filepath.Join(l.dir, activeFile)

	info, err := os.Stat(active)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat ledger: %w", err)
	}

	today := l.now().Local()
	written := info.ModTime().Local()
	if sameDay(written, today) {
		return nil
	}

	archive := filepath.Join(l.dir, archivePrefix+written.Format(archiveDayFmt)+".json")
	if err := os.Rename(active, archive); err != nil {
		return fmt.Errorf("failed to archive ledger: %w", err)
	}
	log.Info().Str("archive", archive).Msg("📁 Ledger rotated")

	return l.prune(today)
}

// prune deletes archives older than the retention window.
func (l *Ledger) prune(today time.Time) error {
	names, err := filepath.Glob(filepath.Join(l.dir, archivePrefix+"*.json"))
	if err != nil {
		return err
	}

	cutoff := today.AddDate(0, 0, -l.retention)
	for _, name := range names {
		day, ok := archiveDay(name)
		if !ok {
			continue
		}
		if day.Before(cutoff) {
			if err := os.Remove(name); err != nil {
				log.Warn().Err(err).Str("file", name).Msg("⚠️ Failed to prune ledger archive")
			}
		}
	}
	return nil
}

// pullFromArchives searches the recent day archives for postHash and, if
// found, removes the row from its archive and returns it for relocation.
func (l *Ledger) pullFromArchives(postHash string) (*Entry, error) {
	today := l.now().Local()
	for back := 1; back <= lookbackDays; back++ {
		day := today.AddDate(0, 0, -back)
		name := filepath.Join(l.dir, archivePrefix+day.Format(archiveDayFmt)+".json")

		entries, err := readEntries(name)
		if err != nil {
			return nil, err
		}
		idx := findEntry(entries, postHash)
		if idx < 0 {
			continue
		}

		found := entries[idx]
		entries = append(entries[:idx], entries[idx+1:]...)
		if err := writeEntries(name, entries); err != nil {
			return nil, err
		}
		log.Info().Str("post_hash", postHash).Str("archive", name).Msg("📁 Ledger entry relocated to active file")
		return &found, nil
	}
	return nil, nil
}

func findEntry(entries []Entry, postHash string) int {
	for i := range entries {
		if entries[i].PostHash == postHash {
			return i
		}
	}
	return -1
}

func applyUpdate(e *Entry, u Update) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&e.WalletName, u.WalletName)
	set(&e.TokenSymbol, u.TokenSymbol)
	set(&e.TokenHash, u.TokenHash)
	set(&e.AmountOfETH, u.AmountOfETH)
	set(&e.Buy, u.Buy)
	set(&e.BuyTx, u.BuyTx)
	set(&e.Sell, u.Sell)
	set(&e.SellTx, u.SellTx)
	set(&e.Fail, u.Fail)
	set(&e.ProfitLoss, u.ProfitLoss)
}

func readEntries(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("corrupt ledger file %s: %w", path, err)
	}
	return entries, nil
}

// writeEntries writes the full entry slice via a temp file rename so a
// crash mid-write never truncates the log.
func writeEntries(path string, entries []Entry) error {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time < entries[j].Time
	})

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func archiveDay(path string) (time.Time, bool) {
	base := filepath.Base(path)
	stamp := strings.TrimSuffix(strings.TrimPrefix(base, archivePrefix), ".json")
	day, err := time.ParseInLocation(archiveDayFmt, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
