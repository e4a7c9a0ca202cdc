package dataset_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlukic/liftlab/internal/dataset"
)

const testSnapshot = `AthleteID,Sex,Equipment,Country,Year,Date,AgeClass,WeightClass,BodyweightKg,Best3SquatKg,Best3BenchKg,Best3DeadliftKg,TotalKg,Dots
ana svensson,F,Raw,Sweden,2021,2021-05-15,24-34,63,62.4,130,75,160,365,401.2
bo berg,M,Raw,,2020,2020-09-01,24-34,93,92.1,220,140,250,610,
cy tran,M,Wraps,Norway,2019,,35-39,105,,240,,280,,
`

func TestReadSnapshot(t *testing.T) {
	records, err := dataset.ReadSnapshot(csv.NewReader(strings.NewReader(testSnapshot)))
	require.NoError(t, err)
	require.Len(t, records, 3)

	ana := records[0]
	assert.Equal(t, "ana svensson", ana.AthleteID)
	assert.Equal(t, "F", ana.Sex)
	require.NotNil(t, ana.Country)
	assert.Equal(t, "Sweden", *ana.Country)
	require.NotNil(t, ana.Date)
	assert.Equal(t, time.Date(2021, 5, 15, 0, 0, 0, 0, time.UTC), *ana.Date)
	require.NotNil(t, ana.Total)
	assert.InDelta(t, 365, *ana.Total, 1e-9)
	require.NotNil(t, ana.Dots)
	assert.InDelta(t, 401.2, *ana.Dots, 1e-9)

	bo := records[1]
	assert.Nil(t, bo.Country)
	assert.Nil(t, bo.Dots)
	require.NotNil(t, bo.Total)
	assert.InDelta(t, 610, *bo.Total, 1e-9)

	cy := records[2]
	assert.Nil(t, cy.Date)
	assert.Nil(t, cy.Bodyweight)
	assert.Nil(t, cy.BestBench)
	assert.Nil(t, cy.Total)
}

func TestReadSnapshot_BadHeader(t *testing.T) {
	_, err := dataset.ReadSnapshot(csv.NewReader(strings.NewReader("a,b,c\n1,2,3\n")))
	require.Error(t, err)
}

func TestWriteSnapshot_ReadBack(t *testing.T) {
	records, err := dataset.ReadSnapshot(csv.NewReader(strings.NewReader(testSnapshot)))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, dataset.WriteSnapshot(csv.NewWriter(&buf), records))

	readBack, err := dataset.ReadSnapshot(csv.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, records, readBack)
}
