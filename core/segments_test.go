package core

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xRadioAc7iv/segcask/internal/segment"
	"github.com/0xRadioAc7iv/segcask/pkg/keys"
)

type sequenceIDs struct{ next uint64 }

func (s *sequenceIDs) Next() uint64 {
	s.next++
	return s.next
}

type constantIDs uint64

func (c constantIDs) Next() uint64 { return uint64(c) }

func openManager(t *testing.T, dir string, maxSize int64, opts ...Option) (*SegmentManager[string], *KeyDir[string]) {
	t.Helper()

	kd := NewKeyDir[string]()
	sm, err := OpenSegmentManager(dir, maxSize, keys.String, kd, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })

	return sm, kd
}

func TestSegmentManagerFreshDirectory(t *testing.T) {
	dir := t.TempDir()
	sm, kd := openManager(t, dir, 1024, WithIDGenerator(&sequenceIDs{}))

	stats := sm.Stats()
	assert.Equal(t, uint64(1), stats.ActiveID)
	assert.Empty(t, stats.SealedIDs)
	assert.Zero(t, kd.Len())
	assert.FileExists(t, filepath.Join(dir, "1_segment.data"))
}

func TestSegmentManagerRolloverBoundary(t *testing.T) {
	dir := t.TempDir()
	sm, _ := openManager(t, dir, 30, WithIDGenerator(&sequenceIDs{}))

	big := make([]byte, 40)
	for i := range big {
		big[i] = byte('a' + i%26)
	}

	loc1, err := sm.Append("big", big)
	require.NoError(t, err)
	assert.Greater(t, loc1.Length, uint32(30))
	assert.Equal(t, uint64(1), loc1.SegmentID, "oversized entry lands whole in the current segment")
	assert.Empty(t, sm.Stats().SealedIDs)

	loc2, err := sm.Append("next", []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loc2.SegmentID)
	assert.Equal(t, int64(0), loc2.Offset)

	stats := sm.Stats()
	assert.Equal(t, uint64(2), stats.ActiveID)
	assert.Equal(t, []uint64{1}, stats.SealedIDs)

	e, err := sm.Read(loc1.SegmentID, loc1.Offset, loc1.Length)
	require.NoError(t, err)
	assert.Equal(t, big, e.Value, "sealed segment stays readable")

	e, err = sm.Read(loc2.SegmentID, loc2.Offset, loc2.Length)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), e.Value)
}

func TestSegmentManagerChecksBeforeWrite(t *testing.T) {
	sm, _ := openManager(t, t.TempDir(), 30, WithIDGenerator(&sequenceIDs{}))

	// Each entry is 15 bytes: 12 header + 1 key + 1 value + 1 tombstone.
	a, err := sm.Append("a", []byte("1"))
	require.NoError(t, err)
	b, err := sm.Append("b", []byte("2"))
	require.NoError(t, err)
	c, err := sm.Append("c", []byte("3"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a.SegmentID)
	assert.Equal(t, uint64(1), b.SegmentID, "15 < 30, no rollover yet")
	assert.Equal(t, int64(15), b.Offset)
	assert.Equal(t, uint64(2), c.SegmentID, "30 >= 30 rolls over before writing")
}

func TestSegmentManagerUnknownSegment(t *testing.T) {
	sm, _ := openManager(t, t.TempDir(), 1024)

	_, err := sm.Read(12345, 0, 15)
	assert.ErrorIs(t, err, ErrUnknownSegment)
}

func TestSegmentManagerAppendDelete(t *testing.T) {
	sm, _ := openManager(t, t.TempDir(), 1024)

	loc, err := sm.AppendDelete("gone")
	require.NoError(t, err)

	e, err := sm.Read(loc.SegmentID, loc.Offset, loc.Length)
	require.NoError(t, err)
	assert.True(t, e.Tombstone)
	assert.Equal(t, "gone", e.Key)
	assert.Empty(t, e.Value)
}

func TestSegmentManagerRejectsRepeatedIDs(t *testing.T) {
	sm, _ := openManager(t, t.TempDir(), 10, WithIDGenerator(constantIDs(7)))

	_, err := sm.Append("a", []byte("1"))
	require.NoError(t, err)

	_, err = sm.Append("b", []byte("2"))
	assert.ErrorIs(t, err, ErrIDNotIncreasing)
}

func TestSegmentManagerReplay(t *testing.T) {
	dir := t.TempDir()
	ids := NewMonotonicIDGenerator()

	{
		sm, _ := openManager(t, dir, 40, WithIDGenerator(ids))

		for _, op := range []struct {
			key, value string
			del        bool
		}{
			{"a", "1", false},
			{"b", "2", false},
			{"a", "3", false},
			{"c", "4", false},
			{"b", "", true},
			{"d", "5", false},
		} {
			var err error
			if op.del {
				_, err = sm.AppendDelete(op.key)
			} else {
				_, err = sm.Append(op.key, []byte(op.value))
			}
			require.NoError(t, err)
		}

		require.GreaterOrEqual(t, len(sm.Stats().SealedIDs), 1)
		require.NoError(t, sm.Close())
	}

	sm, kd := openManager(t, dir, 40)

	assert.ElementsMatch(t, []string{"a", "c", "d"}, kd.Keys())

	for key, want := range map[string]string{"a": "3", "c": "4", "d": "5"} {
		loc, ok := kd.Get(key)
		require.True(t, ok)

		e, err := sm.Read(loc.SegmentID, loc.Offset, loc.Length)
		require.NoError(t, err)
		assert.Equal(t, want, string(e.Value), "key %s", key)
	}

	stats := sm.Stats()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var segmentFiles int
	for _, entry := range entries {
		if _, ok := segment.ParseFileName(entry.Name()); ok {
			segmentFiles++
		}
	}
	assert.Equal(t, segmentFiles, len(stats.SealedIDs)+1)
	for _, id := range stats.SealedIDs {
		assert.Less(t, id, stats.ActiveID, "newest segment becomes active")
	}
}

func TestSegmentManagerNewIDsAfterReopenAreGreater(t *testing.T) {
	dir := t.TempDir()

	// A segment id far in the future of the wall clock.
	const future = uint64(1) << 62
	seg, err := segment.Create(future, dir, keys.String)
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	sm, _ := openManager(t, dir, 1)

	_, err = sm.Append("a", []byte("1"))
	require.NoError(t, err)
	loc, err := sm.Append("b", []byte("2"))
	require.NoError(t, err)

	assert.Greater(t, loc.SegmentID, future)
}

func TestSegmentManagerTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()

	{
		sm, _ := openManager(t, dir, 1024, WithIDGenerator(&sequenceIDs{}))
		_, err := sm.Append("kept", []byte("value"))
		require.NoError(t, err)
		require.NoError(t, sm.Close())
	}

	path := filepath.Join(dir, segment.FileName(1))
	before, err := os.Stat(path)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 0, 4, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sm, kd := openManager(t, dir, 1024)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())
	assert.Equal(t, before.Size(), sm.Stats().ActiveSize)

	loc, ok := kd.Get("kept")
	require.True(t, ok)
	e, err := sm.Read(loc.SegmentID, loc.Offset, loc.Length)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), e.Value)

	saved, err := os.ReadFile(path + segment.TornSuffix)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 4, 0}, saved, "dropped bytes are kept next to the segment")
}

func TestSegmentManagerDamagedHeaderInActiveSegmentFails(t *testing.T) {
	dir := t.TempDir()

	var second EntryLocation
	{
		sm, _ := openManager(t, dir, 1024, WithIDGenerator(&sequenceIDs{}))
		for i, k := range []string{"a", "b", "c", "d"} {
			loc, err := sm.Append(k, []byte("1"))
			require.NoError(t, err)
			if i == 1 {
				second = loc
			}
		}
		require.NoError(t, sm.Close())
	}

	path := filepath.Join(dir, segment.FileName(1))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[second.Offset+4:], 1<<20)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = OpenSegmentManager(dir, 1024, keys.String, NewKeyDir[string]())
	assert.ErrorIs(t, err, ErrCorruptFrame)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, after, "no bytes are dropped from a damaged segment")
	assert.NoFileExists(t, path+segment.TornSuffix)
}

func TestOpenSegmentManagerRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int64{0, -1} {
		_, err := OpenSegmentManager(t.TempDir(), size, keys.String, NewKeyDir[string]())
		assert.ErrorIs(t, err, ErrInvalidSegmentSize, "size %d", size)
	}
}

func TestSegmentManagerCorruptSealedSegmentFails(t *testing.T) {
	dir := t.TempDir()

	{
		sm, _ := openManager(t, dir, 1, WithIDGenerator(&sequenceIDs{}))
		_, err := sm.Append("a", []byte("1"))
		require.NoError(t, err)
		_, err = sm.Append("b", []byte("2"))
		require.NoError(t, err)
		require.Equal(t, []uint64{1}, sm.Stats().SealedIDs)
		require.NoError(t, sm.Close())
	}

	f, err := os.OpenFile(filepath.Join(dir, segment.FileName(1)), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenSegmentManager(dir, 1, keys.String, NewKeyDir[string]())
	assert.ErrorIs(t, err, ErrCorruptFrame)
}

func TestSegmentManagerClosed(t *testing.T) {
	sm, _ := openManager(t, t.TempDir(), 1024)

	loc, err := sm.Append("a", []byte("1"))
	require.NoError(t, err)
	require.NoError(t, sm.Close())
	require.NoError(t, sm.Close())

	_, err = sm.Append("b", []byte("2"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = sm.Read(loc.SegmentID, loc.Offset, loc.Length)
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, sm.Flush(), ErrClosed)
}
