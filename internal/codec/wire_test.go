package codec

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/schedule"
	"github.com/rich-project/plexid/internal/stats"
	"github.com/stretchr/testify/require"
)

func TestSlotframeDTORoundTrip(t *testing.T) {
	sf := schedule.Slotframe{Handle: 1, Size: 101}
	dto := SlotframeToDTO(sf)
	b, err := jsoniter.Marshal(dto)
	require.NoError(t, err)
	require.JSONEq(t, `{"fd":1,"ns":101}`, string(b))
}

func TestLinkDTORoundTrip(t *testing.T) {
	addr, err := euiaddr.Parse("0:12:74:1:1:1:1:1")
	require.NoError(t, err)
	l := schedule.Link{
		Handle: 9, Slotframe: 1, Timeslot: 5, Channel: 2,
		Options: schedule.OptTX, Type: schedule.LinkNormal, Target: addr,
	}
	dto := LinkToDTO(l, nil)
	sfHandle, opts, typ, gotAddr, timeslot, channel, err := LinkFromDTO(dto)
	require.NoError(t, err)
	require.Equal(t, l.Slotframe, sfHandle)
	require.Equal(t, l.Options, opts)
	require.Equal(t, l.Type, typ)
	require.Equal(t, l.Target, gotAddr)
	require.Equal(t, l.Timeslot, timeslot)
	require.Equal(t, l.Channel, channel)
}

func TestFormatValueASNHex(t *testing.T) {
	raw, err := FormatValue(stats.MetricASN, 0xBEEF)
	require.NoError(t, err)
	require.Equal(t, `"beef"`, string(raw))

	v, err := ParseValue(stats.MetricASN, raw)
	require.NoError(t, err)
	require.Equal(t, int64(0xBEEF), v)
}

func TestFormatValueRSSISignedDecimal(t *testing.T) {
	raw, err := FormatValue(stats.MetricRSSI, -59)
	require.NoError(t, err)
	require.Equal(t, "-59", string(raw))

	v, err := ParseValue(stats.MetricRSSI, raw)
	require.NoError(t, err)
	require.Equal(t, int64(-59), v)
}

func TestFormatValueLQIUnsignedDecimal(t *testing.T) {
	raw, err := FormatValue(stats.MetricLQI, 200)
	require.NoError(t, err)
	require.Equal(t, "200", string(raw))
}

func TestStatsEntryToDTOEmbedsEnableFlag(t *testing.T) {
	e := stats.Entry{ID: 1, LinkHandle: 9, Metric: stats.MetricRSSI, Enabled: true, Window: 16, Value: -59}
	dto, err := StatsEntryToDTO(e, 1, 5, 2)
	require.NoError(t, err)
	require.Equal(t, 1, dto.Enable)
	require.Equal(t, "rssi", dto.Metric)
	require.Equal(t, "-59", string(dto.Value))
}
