package orders

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalOf(t *testing.T) {
	items := []LineItem{
		{Price: MustMoney("50"), Quantity: 2},
		{Price: MustMoney("150"), Quantity: 1},
	}
	total := TotalOf(items)
	assert.True(t, total.Equal(MustMoney("250")))
	minor, ok := total.MinorUnits()
	require.True(t, ok)
	assert.Equal(t, int64(25000), minor)
}

func TestMinorUnits_Rounding(t *testing.T) {
	cases := map[string]int64{
		"0":      0,
		"0.01":   1,
		"19.99":  1999,
		"10.005": 1001,
		"0.004":  0,
	}
	for in, want := range cases {
		got, ok := MustMoney(in).MinorUnits()
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
}

func TestMinorUnits_OutOfRange(t *testing.T) {
	for _, in := range []string{"184467440737095517.16", "92233720368547758.08", "-92233720368547758.09"} {
		_, ok := MustMoney(in).MinorUnits()
		assert.False(t, ok, in)
	}

	got, ok := MustMoney("92233720368547758.07").MinorUnits()
	require.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), got)
}

func TestMoneyFromMinor(t *testing.T) {
	assert.True(t, MoneyFromMinor(25000).Equal(MustMoney("250")))
	assert.True(t, MoneyFromMinor(1).Equal(MustMoney("0.01")))
}

func TestMoney_AttributeValue(t *testing.T) {
	av, err := attributevalue.Marshal(MustMoney("12.50"))
	require.NoError(t, err)
	n, ok := av.(*types.AttributeValueMemberN)
	require.True(t, ok, "got %T", av)
	assert.Equal(t, "12.5", n.Value)

	var m Money
	require.NoError(t, attributevalue.Unmarshal(&types.AttributeValueMemberN{Value: "99.95"}, &m))
	assert.True(t, m.Equal(MustMoney("99.95")))

	assert.Error(t, attributevalue.Unmarshal(&types.AttributeValueMemberS{Value: "1"}, &m))
}

func TestMoney_JSONIsBareNumber(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{MustMoney("250")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":250}`, string(b))

	var out struct {
		Total Money `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"total":19.5}`), &out))
	assert.True(t, out.Total.Equal(MustMoney("19.5")))
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("49.50")
	require.NoError(t, err)
	minor, ok := m.MinorUnits()
	require.True(t, ok)
	assert.Equal(t, int64(4950), minor)

	_, err = ParseMoney("-1")
	assert.Error(t, err)
	_, err = ParseMoney("abc")
	assert.Error(t, err)
}
