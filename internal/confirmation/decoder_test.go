package confirmation

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
)

func TestDecodeBatch(t *testing.T) {
	t.Run("decodes numbered entries in order", func(t *testing.T) {
		values := url.Values{}
		values.Set("receiver_address_1", "a@example.com")
		values.Set("transfer_txn_id_1", "txn-1")
		values.Set("status_1", "Completed")
		values.Set("unique_id_1", "pay-1")
		values.Set("processor_fee_1", "1.25")

		values.Set("receiver_address_2", "b@example.com")
		values.Set("transfer_txn_id_2", "txn-2")
		values.Set("status_2", "Failed")
		values.Set("unique_id_2", "pay-2")
		values.Set("processor_fee_2", "0.00")
		values.Set("reason_code_2", "1001")

		events, dropped := DecodeBatch(values)
		require.Len(t, events, 2)
		assert.Equal(t, 0, dropped)

		assert.Equal(t, "pay-1", events[0].UniqueID)
		assert.Equal(t, domain.StatusCompleted, events[0].Status)
		assert.Equal(t, int64(125), events[0].ProcessorFeeCents)
		assert.Equal(t, domain.ReasonNone, events[0].ReasonCode)

		assert.Equal(t, domain.StatusFailed, events[1].Status)
		assert.Equal(t, domain.ReasonInvalidAccount, events[1].ReasonCode)
	})

	t.Run("trims whitespace around fees", func(t *testing.T) {
		values := url.Values{}
		values.Set("unique_id_1", "pay-1")
		values.Set("status_1", "Completed")
		values.Set("processor_fee_1", "  2.50 ")

		events, dropped := DecodeBatch(values)
		require.Len(t, events, 1)
		assert.Equal(t, 0, dropped)
		assert.Equal(t, int64(250), events[0].ProcessorFeeCents)
	})

	t.Run("drops entries with unrecognised status", func(t *testing.T) {
		values := url.Values{}
		values.Set("unique_id_1", "pay-1")
		values.Set("status_1", "Exploded")
		values.Set("unique_id_2", "pay-2")
		values.Set("status_2", "Returned")

		events, dropped := DecodeBatch(values)
		require.Len(t, events, 1)
		assert.Equal(t, 1, dropped)
		assert.Equal(t, "pay-2", events[0].UniqueID)
	})

	t.Run("drops entries with malformed fees", func(t *testing.T) {
		values := url.Values{}
		values.Set("unique_id_1", "pay-1")
		values.Set("status_1", "Completed")
		values.Set("processor_fee_1", "not-a-number")

		events, dropped := DecodeBatch(values)
		assert.Empty(t, events)
		assert.Equal(t, 1, dropped)
	})

	t.Run("missing fee means zero", func(t *testing.T) {
		values := url.Values{}
		values.Set("unique_id_1", "pay-1")
		values.Set("status_1", "Unclaimed")

		events, _ := DecodeBatch(values)
		require.Len(t, events, 1)
		assert.Zero(t, events[0].ProcessorFeeCents)
	})

	t.Run("stops at the first gap in numbering", func(t *testing.T) {
		values := url.Values{}
		values.Set("unique_id_1", "pay-1")
		values.Set("status_1", "Completed")
		values.Set("unique_id_3", "pay-3")
		values.Set("status_3", "Completed")

		events, dropped := DecodeBatch(values)
		require.Len(t, events, 1)
		assert.Equal(t, 0, dropped)
	})

	t.Run("unknown reason code lands on unclassified", func(t *testing.T) {
		values := url.Values{}
		values.Set("unique_id_1", "pay-1")
		values.Set("status_1", "Failed")
		values.Set("reason_code_1", "9999")

		events, _ := DecodeBatch(values)
		require.Len(t, events, 1)
		assert.Equal(t, domain.ReasonUnclassified, events[0].ReasonCode)
	})
}
