package cleaner_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dlukic/liftlab/internal/cleaner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const rawCsv = `Name,Sex,Equipment,Country,Date,AgeClass,WeightClassKg,BodyweightKg,Best3SquatKg,Best3BenchKg,Best3DeadliftKg,TotalKg,Dots
Ana Svensson,F,Raw,Sweden,2021-05-15,24-34,63,62.4,130,75,160,365,401.2
Bo Berg,M,Raw,,2020-09-01,24-34,93,92.1,220,-140,250,610,
Cy Tran,Mx,Raw,Norway,2019-03-01,35-39,105,104,240,150,280,670,
Dee Wu,F,Straps,Sweden,2019-03-01,24-34,72,71,150,90,180,420,
Ed Olsen,M,Wraps,Norway,not-a-date,35-39,105,104,240,150,280,670,
Fay Li,F,Raw,Sweden,2022-11-20,24-34,63,62,135,78,165,,
Gus Ek,M,Single-ply,Sweden,2018-06-10,40-44,120,118,280,190,300,770,455.1
`

func TestCleaner_Clean(t *testing.T) {
	records, stats, err := cleaner.New().Clean(context.Background(), strings.NewReader(rawCsv))
	require.NoError(t, err)

	// dropped: unknown sex, unknown equipment, bad date, missing total
	assert.Equal(t, 7, stats.RowsRead)
	assert.Equal(t, 3, stats.RowsKept)
	assert.Equal(t, 4, stats.RowsDropped)
	require.Len(t, records, 3)

	ana := records[0]
	assert.Equal(t, "Ana Svensson", ana.AthleteID)
	assert.Equal(t, "F", ana.Sex)
	assert.Equal(t, "Raw", ana.Equipment)
	assert.Equal(t, 2021, ana.Year)
	require.NotNil(t, ana.Date)
	assert.Equal(t, "2021-05-15", ana.Date.Format("2006-01-02"))
	require.NotNil(t, ana.Country)
	assert.Equal(t, "Sweden", *ana.Country)
	require.NotNil(t, ana.Total)
	assert.InDelta(t, 365, *ana.Total, 1e-9)
	require.NotNil(t, ana.Dots)
	assert.InDelta(t, 401.2, *ana.Dots, 1e-9)

	bo := records[1]
	assert.Nil(t, bo.Country)
	// a negative best attempt means every attempt failed
	assert.Nil(t, bo.BestBench)
	assert.Nil(t, bo.Dots)
	require.NotNil(t, bo.BestSquat)
	assert.InDelta(t, 220, *bo.BestSquat, 1e-9)

	gus := records[2]
	assert.Equal(t, "Single-ply", gus.Equipment)
	assert.Equal(t, 2018, gus.Year)
}

func TestCleaner_Clean_MissingColumns(t *testing.T) {
	_, _, err := cleaner.New().Clean(context.Background(), strings.NewReader("Name,Sex\nana,F\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cleaner.ErrMissingColumns))
}

func TestCleaner_Clean_ShuffledColumns(t *testing.T) {
	shuffled := "TotalKg,Name,Date,Equipment,Sex\n365,Ana,2021-05-15,Raw,F\n"
	records, stats, err := cleaner.New().Clean(context.Background(), strings.NewReader(shuffled))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsKept)
	require.Len(t, records, 1)
	assert.Equal(t, "Ana", records[0].AthleteID)
	require.NotNil(t, records[0].Total)
	assert.InDelta(t, 365, *records[0].Total, 1e-9)
}
