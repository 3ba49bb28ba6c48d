package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(t.TempDir(), 30)
	require.NoError(t, err)
	return l
}

func TestUpsertCreatesAndMerges(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Upsert("0xpost", Update{
		WalletName:  String("whale"),
		TokenSymbol: String("TST"),
		AmountOfETH: String("0.05"),
	}))
	require.NoError(t, l.Upsert("0xpost", Update{
		Buy:   String(MarkYes),
		BuyTx: String("0xbuy"),
	}))

	entry, found, err := l.Lookup("0xpost")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "whale", entry.WalletName)
	assert.Equal(t, "TST", entry.TokenSymbol)
	assert.Equal(t, "0.05", entry.AmountOfETH)
	assert.Equal(t, MarkYes, entry.Buy)
	assert.Equal(t, "0xbuy", entry.BuyTx)
	assert.NotEmpty(t, entry.Time)
}

func TestUpsertIsIdempotentPerField(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Upsert("0xpost", Update{Buy: String(MarkYes), BuyTx: String("0xbuy")}))
	require.NoError(t, l.Upsert("0xpost", Update{Buy: String(MarkYes), BuyTx: String("0xbuy")}))

	entries, err := readEntries(filepath.Join(l.dir, activeFile))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xbuy", entries[0].BuyTx)
}

func TestSeparatePostHashesGetSeparateRows(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Upsert("0xaaa", Update{Buy: String(MarkYes)}))
	require.NoError(t, l.Upsert("0xbbb", Update{Buy: String(MarkNo)}))

	entries, err := readEntries(filepath.Join(l.dir, activeFile))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRotationArchivesPreviousDay(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Upsert("0xold", Update{Buy: String(MarkYes)}))

	// Jump the clock one day forward. The active file's mtime now lies
	// on an earlier local day, so the next write rotates it out.
	l.now = func() time.Time { return time.Now().AddDate(0, 0, 1) }
	require.NoError(t, l.Upsert("0xnew", Update{Buy: String(MarkYes)}))

	archive := filepath.Join(l.dir, archivePrefix+time.Now().Local().Format(archiveDayFmt)+".json")
	archived, err := readEntries(archive)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "0xold", archived[0].PostHash)

	active, err := readEntries(filepath.Join(l.dir, activeFile))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "0xnew", active[0].PostHash)
}

func TestUpsertRelocatesFromRecentArchive(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Upsert("0xpost", Update{Buy: String(MarkYes), BuyTx: String("0xbuy")}))

	// The position's sell lands after midnight: its buy row has already
	// been rotated into yesterday's archive.
	l.now = func() time.Time { return time.Now().AddDate(0, 0, 1) }
	require.NoError(t, l.Upsert("0xpost", Update{Sell: String(MarkYes), SellTx: String("0xsell")}))

	entry, found, err := l.Lookup("0xpost")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, MarkYes, entry.Buy)
	assert.Equal(t, "0xbuy", entry.BuyTx)
	assert.Equal(t, MarkYes, entry.Sell)
	assert.Equal(t, "0xsell", entry.SellTx)

	archive := filepath.Join(l.dir, archivePrefix+time.Now().Local().Format(archiveDayFmt)+".json")
	archived, err := readEntries(archive)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestPruneDropsExpiredArchives(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 7)
	require.NoError(t, err)

	old := time.Now().AddDate(0, 0, -30).Format(archiveDayFmt)
	recent := time.Now().AddDate(0, 0, -2).Format(archiveDayFmt)
	require.NoError(t, os.WriteFile(filepath.Join(dir, archivePrefix+old+".json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, archivePrefix+recent+".json"), []byte("[]"), 0o644))

	require.NoError(t, l.prune(time.Now()))

	_, err = os.Stat(filepath.Join(dir, archivePrefix+old+".json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, archivePrefix+recent+".json"))
	assert.NoError(t, err)
}
