package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalDateBucket(t *testing.T) {
	tests := []struct {
		dialect Dialect
		pattern string
		want    string
	}{
		{
			MySQL, "%Y-%m-%d",
			"DATE_FORMAT(DATE(CONVERT_TZ(`created_at`, '+00:00', '+05:30')), '%Y-%m-%d')",
		},
		{
			Postgres, "%Y-%m",
			`to_char(CAST(("created_at" + INTERVAL '330 minutes') AS date), 'YYYY-MM')`,
		},
		{
			MSSQL, "%Y-%m-%d",
			"FORMAT(CAST(DATEADD(minute, 330, [created_at]) AS date), 'yyyy-MM-dd')",
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.LocalDateBucket("created_at", 330, tt.pattern))
		})
	}
}

func TestLocalTZConvertNegativeOffset(t *testing.T) {
	assert.Equal(t, "CONVERT_TZ(`ts`, '+00:00', '-04:00')", MySQL.LocalTZConvert("ts", -240))
	assert.Equal(t, `("ts" + INTERVAL '-240 minutes')`, Postgres.LocalTZConvert("ts", -240))
}

func TestNullSafeSum(t *testing.T) {
	assert.Equal(t, "SUM(COALESCE(`amount`, 0))", MySQL.NullSafeSum("amount"))
	assert.Equal(t, "SUM(COALESCE([amount], 0))", MSSQL.NullSafeSum("amount"))
}
