package htlcswitch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/paymentd/payment"
)

func TestInMemoryDispatcherResolvesPendingSend(t *testing.T) {
	d := NewInMemoryDispatcher()

	var hash [32]byte
	hash[0] = 0x42

	err := d.SendOnion(context.Background(), payment.HTLCRequest{
		PaymentHash: hash,
		PartID:      1,
	})
	require.NoError(t, err)

	preimage := hash
	go func() {
		time.Sleep(10 * time.Millisecond)
		d.Resolve(hash, 1, &payment.Result{
			State:           payment.ResultComplete,
			PaymentPreimage: &preimage,
		})
	}()

	res, err := d.WaitSendPay(context.Background(), hash, 1)
	require.NoError(t, err)
	require.Equal(t, payment.ResultComplete, res.State)
	require.Equal(t, &preimage, res.PaymentPreimage)
}

func TestInMemoryDispatcherWaitWithoutSendErrors(t *testing.T) {
	d := NewInMemoryDispatcher()

	var hash [32]byte
	_, err := d.WaitSendPay(context.Background(), hash, 7)
	require.Error(t, err)
}

func TestInMemoryDispatcherDuplicateSendErrors(t *testing.T) {
	d := NewInMemoryDispatcher()

	req := payment.HTLCRequest{PartID: 3}
	require.NoError(t, d.SendOnion(context.Background(), req))
	require.Error(t, d.SendOnion(context.Background(), req))
}

func TestInMemoryDispatcherWaitCanceled(t *testing.T) {
	d := NewInMemoryDispatcher()

	var hash [32]byte
	require.NoError(t, d.SendOnion(context.Background(), payment.HTLCRequest{
		PaymentHash: hash,
		PartID:      9,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := d.WaitSendPay(ctx, hash, 9)
	require.Error(t, err)
}
