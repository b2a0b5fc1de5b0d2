package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/infra/gateway"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	checkoutUser  = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	checkoutOrder = "66666666-6666-4666-8666-666666666666"
)

func newCheckoutFixture() (*usecase.CheckoutUsecase, *TxManagerMock, *OrderRepoMock, *GatewayMock) {
	tx := new(TxManagerMock)
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	tx.Repos = &TxReposMock{orders: orders}

	uc := usecase.NewCheckoutUsecase(tx, gw, usecase.CheckoutConfig{
		Currency:              "dzd",
		DefaultSuccessURL:     "https://shop.example.com/checkout/success",
		DefaultFailureURL:     "https://shop.example.com/checkout/failure",
		WebhookURL:            "https://api.example.com/webhooks/payment",
		AllowedRedirectOrigin: "https://shop.example.com",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return uc, tx, orders, gw
}

func pendingOrder(userID *string) model.Order {
	return model.Order{
		ID:            checkoutOrder,
		UserID:        userID,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		TotalAmount:   decimal.NewFromInt(1000),
	}
}

func TestCreateCheckoutSession_Success_CarriesOrderID(t *testing.T) {
	uc, tx, orders, gw := newCheckoutFixture()

	tx.On("WithinTx", mock.Anything).Return(nil)
	orders.On("FindByID", mock.Anything, checkoutOrder).Return(pendingOrder(strPtr(checkoutUser)), nil)
	gw.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(in gateway.CheckoutRequest) bool {
		return in.Amount.Equal(decimal.NewFromInt(1000)) &&
			in.Currency == "dzd" &&
			in.Metadata["order_id"] == checkoutOrder &&
			in.SuccessURL == "https://shop.example.com/checkout/success" &&
			in.WebhookEndpoint == "https://api.example.com/webhooks/payment"
	})).Return(gateway.CheckoutSession{ID: "ch_1", CheckoutURL: "https://pay.example.com/ch_1"}, nil)

	out, err := uc.CreateCheckoutSession(context.Background(), checkoutUser, usecase.CreateCheckoutInput{OrderID: checkoutOrder})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/ch_1", out.CheckoutURL)
	gw.AssertExpectations(t)
}

func TestCreateCheckoutSession_GuestOrderCanBePaid(t *testing.T) {
	uc, tx, orders, gw := newCheckoutFixture()

	tx.On("WithinTx", mock.Anything).Return(nil)
	orders.On("FindByID", mock.Anything, checkoutOrder).Return(pendingOrder(nil), nil)
	gw.On("CreateCheckout", mock.Anything, mock.Anything).Return(gateway.CheckoutSession{CheckoutURL: "https://pay.example.com/x"}, nil)

	_, err := uc.CreateCheckoutSession(context.Background(), checkoutUser, usecase.CreateCheckoutInput{OrderID: checkoutOrder})
	require.NoError(t, err)
}

func TestCreateCheckoutSession_CustomRedirect(t *testing.T) {
	uc, tx, orders, gw := newCheckoutFixture()

	tx.On("WithinTx", mock.Anything).Return(nil)
	orders.On("FindByID", mock.Anything, checkoutOrder).Return(pendingOrder(strPtr(checkoutUser)), nil)
	gw.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(in gateway.CheckoutRequest) bool {
		return in.SuccessURL == "https://shop.example.com/thanks?o=1"
	})).Return(gateway.CheckoutSession{CheckoutURL: "https://pay.example.com/x"}, nil)

	_, err := uc.CreateCheckoutSession(context.Background(), checkoutUser, usecase.CreateCheckoutInput{
		OrderID:    checkoutOrder,
		SuccessURL: "https://shop.example.com/thanks?o=1",
	})
	require.NoError(t, err)
}

func TestCreateCheckoutSession_RejectsForeignRedirect(t *testing.T) {
	uc, tx, _, gw := newCheckoutFixture()

	_, err := uc.CreateCheckoutSession(context.Background(), checkoutUser, usecase.CreateCheckoutInput{
		OrderID:    checkoutOrder,
		FailureURL: "https://evil.example.net/phish",
	})
	assertErrContains(t, err, "invalid failureUrl")
	tx.AssertNotCalled(t, "WithinTx", mock.Anything)
	gw.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
}

func TestCreateCheckoutSession_Validation(t *testing.T) {
	uc, _, _, _ := newCheckoutFixture()

	_, err := uc.CreateCheckoutSession(context.Background(), "", usecase.CreateCheckoutInput{OrderID: checkoutOrder})
	assertStatus(t, err, http.StatusUnauthorized)

	_, err = uc.CreateCheckoutSession(context.Background(), checkoutUser, usecase.CreateCheckoutInput{OrderID: "42"})
	assertErrContains(t, err, "invalid orderId")
}

func TestCreateCheckoutSession_OrderStates(t *testing.T) {
	cases := []struct {
		name   string
		order  func() model.Order
		err    error
		status int
	}{
		{"not found", func() model.Order { return model.Order{} }, repo.ErrNotFound, http.StatusNotFound},
		{"other user", func() model.Order { return pendingOrder(strPtr("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb")) }, nil, http.StatusNotFound},
		{"already paid", func() model.Order {
			o := pendingOrder(strPtr(checkoutUser))
			o.PaymentStatus = model.PaymentStatusPaid
			return o
		}, nil, http.StatusConflict},
		{"cancelled", func() model.Order {
			o := pendingOrder(strPtr(checkoutUser))
			o.Status = model.OrderStatusCancelled
			return o
		}, nil, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc, tx, orders, gw := newCheckoutFixture()
			tx.On("WithinTx", mock.Anything).Return(nil)
			orders.On("FindByID", mock.Anything, checkoutOrder).Return(tc.order(), tc.err)

			_, err := uc.CreateCheckoutSession(context.Background(), checkoutUser, usecase.CreateCheckoutInput{OrderID: checkoutOrder})
			assertStatus(t, err, tc.status)
			gw.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
		})
	}
}

// 失敗したら「checkout initiation failed」。注文は変更しない
func TestCreateCheckoutSession_GatewayFailure(t *testing.T) {
	uc, tx, orders, gw := newCheckoutFixture()

	tx.On("WithinTx", mock.Anything).Return(nil)
	orders.On("FindByID", mock.Anything, checkoutOrder).Return(pendingOrder(strPtr(checkoutUser)), nil)
	gw.On("CreateCheckout", mock.Anything, mock.Anything).Return(gateway.CheckoutSession{}, errors.New("dial tcp: timeout"))

	_, err := uc.CreateCheckoutSession(context.Background(), checkoutUser, usecase.CreateCheckoutInput{OrderID: checkoutOrder})
	assertErrContains(t, err, "checkout initiation failed")
	assertStatus(t, err, http.StatusBadGateway)

	orders.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}
