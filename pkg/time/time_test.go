package time

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetInternalTime(t *testing.T) {
	now := time.Now()
	// Check that reading and setting time is precise
	now = now.Round(1 * time.Millisecond)
	timeInstance := &TIME{logger: slog.Default()}
	timeInstance.SetInternalTime(now)
	internalTime := timeInstance.InternalTime()
	timeDiff := internalTime.Sub(now)
	assert.LessOrEqual(t, math.Abs(float64(timeDiff.Milliseconds())), 2.0)
	nowPlus1Day := now.Add(24 * time.Hour)
	timeInstance.SetInternalTime(nowPlus1Day)
	timeDiff = timeInstance.InternalTime().Sub(nowPlus1Day)
	assert.LessOrEqual(t, math.Abs(float64(timeDiff.Milliseconds())), 2.0)
}

func TestConvertByteToTime(t *testing.T) {
	// 100 000 ms after midnight, 12076 days after 1984-01-01
	data := [8]byte{0xA0, 0x86, 0x01, 0x00, 0x2C, 0x2F}
	decoded := convertByteToTime(data)
	expected := TimestampOrigin.AddDate(0, 0, 12076).Add(100000 * time.Millisecond)
	assert.True(t, decoded.Equal(expected))
	assert.Equal(t, 1, decoded.Minute())
	assert.Equal(t, 40, decoded.Second())
}

func TestConvertTimeToByte(t *testing.T) {
	moment := TimestampOrigin.AddDate(0, 0, 12076).Add(100000 * time.Millisecond)
	data := convertTimeToByte(moment)
	assert.Equal(t, [8]byte{0xA0, 0x86, 0x01, 0x00, 0x2C, 0x2F}, data)
	// Round trip
	assert.True(t, convertByteToTime(data).Equal(moment))
}
