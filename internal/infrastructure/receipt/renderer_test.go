package receipt

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/domain/entity"
)

func TestExcelRenderer_Render(t *testing.T) {
	renderer := NewExcelRenderer("Sunrise International School", zap.NewNop())

	r := &entity.Receipt{
		ID:                1,
		Reference:         "REC-2026-000042",
		PaymentID:         7,
		PaymentReference:  "PAY-2026-000007",
		InvoiceReference:  "INV-2026-000003",
		Amount:            decimal.NewFromInt(60000),
		Currency:          "XOF",
		PayerID:           "PAYER-001",
		PayerName:         "Mariam Diallo",
		StudentName:       "Awa Diallo",
		IssuedBy:          "bursar-01",
		IssuedAt:          time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		VerificationToken: "7c0a8f4e-3a11-4b7e-9fd2-1c2d3e4f5a6b",
		Checksum:          "deadbeef",
	}

	data, err := renderer.Render(r)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Receipt"}, f.GetSheetList())

	cell := func(ref string) string {
		v, err := f.GetCellValue("Receipt", ref)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Sunrise International School", cell("A1"))
	assert.Equal(t, "Payment Receipt", cell("A2"))
	assert.Equal(t, "REC-2026-000042", cell("B4"))
	assert.Equal(t, "2026-03-14 10:30", cell("B5"))
	assert.Equal(t, "PAY-2026-000007", cell("B6"))
	assert.Equal(t, "INV-2026-000003", cell("B7"))
	assert.Equal(t, "Mariam Diallo", cell("B8"))
	assert.Equal(t, "Awa Diallo", cell("B9"))
	assert.Equal(t, "60000 XOF", cell("B10"))
	assert.Equal(t, "bursar-01", cell("B11"))
	assert.Equal(t, r.VerificationToken, cell("B12"))
	assert.Equal(t, "deadbeef", cell("B13"))
}

func TestExcelRenderer_Reproducible(t *testing.T) {
	renderer := NewExcelRenderer("Sunrise International School", zap.NewNop())

	r := &entity.Receipt{
		Reference:        "REC-2026-000001",
		PaymentReference: "PAY-2026-000001",
		InvoiceReference: "INV-2026-000001",
		Amount:           decimal.NewFromInt(1000),
		Currency:         "XOF",
		IssuedAt:         time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}

	first, err := renderer.Render(r)
	require.NoError(t, err)
	second, err := renderer.Render(r)
	require.NoError(t, err)

	// Same row renders to equivalent content both times.
	fa, err := excelize.OpenReader(bytes.NewReader(first))
	require.NoError(t, err)
	defer fa.Close()
	fb, err := excelize.OpenReader(bytes.NewReader(second))
	require.NoError(t, err)
	defer fb.Close()

	rowsA, err := fa.GetRows("Receipt")
	require.NoError(t, err)
	rowsB, err := fb.GetRows("Receipt")
	require.NoError(t, err)
	assert.Equal(t, rowsA, rowsB)
}
