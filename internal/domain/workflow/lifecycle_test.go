package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestInvoiceLifecycle_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{"issue from draft", InvoiceDraft, TriggerIssue, InvoiceIssued, false},
		{"cancel from draft", InvoiceDraft, TriggerCancel, InvoiceCancelled, false},
		{"pay from issued", InvoiceIssued, TriggerPay, InvoicePartiallyPaid, false},
		{"cancel from issued", InvoiceIssued, TriggerCancel, InvoiceCancelled, false},
		{"pay to completion", InvoicePartiallyPaid, TriggerPay, InvoicePaid, false},
		{"reverse from partially paid", InvoicePartiallyPaid, TriggerReverse, InvoiceIssued, false},
		{"cancel from partially paid", InvoicePartiallyPaid, TriggerCancel, InvoiceCancelled, false},
		{"reverse pulls paid back", InvoicePaid, TriggerReverse, InvoicePartiallyPaid, false},
		{"cannot cancel paid", InvoicePaid, TriggerCancel, "", true},
		{"cannot issue twice", InvoiceIssued, TriggerIssue, "", true},
		{"cancelled is terminal", InvoiceCancelled, TriggerIssue, "", true},
		{"cannot pay draft", InvoiceDraft, TriggerPay, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := NewInvoiceLifecycle().Build(tt.from)
			err := machine.Fire(context.Background(), tt.trigger)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Fire() error = %v, want ErrInvalidTransition", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fire() unexpected error: %v", err)
			}
			if machine.State() != tt.want {
				t.Errorf("State() = %v, want %v", machine.State(), tt.want)
			}
		})
	}
}

func TestPaymentLifecycle_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{"validate pending", PaymentPending, TriggerValidate, PaymentValidated, false},
		{"cancel pending", PaymentPending, TriggerCancelPayment, PaymentCancelled, false},
		{"cancel validated", PaymentValidated, TriggerCancelPayment, PaymentCancelled, false},
		{"cannot validate twice", PaymentValidated, TriggerValidate, "", true},
		{"cancelled is terminal", PaymentCancelled, TriggerValidate, "", true},
		{"cannot cancel twice", PaymentCancelled, TriggerCancelPayment, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := NewPaymentLifecycle().Build(tt.from)
			err := machine.Fire(context.Background(), tt.trigger)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Fire() error = %v, want ErrInvalidTransition", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fire() unexpected error: %v", err)
			}
			if machine.State() != tt.want {
				t.Errorf("State() = %v, want %v", machine.State(), tt.want)
			}
		})
	}
}

func TestWaiverLifecycle_Transitions(t *testing.T) {
	terminalTriggers := []struct {
		trigger Trigger
		want    State
	}{
		{TriggerApprove, WaiverApproved},
		{TriggerReject, WaiverRejected},
		{TriggerCancelWaiver, WaiverCancelled},
		{TriggerExpire, WaiverExpired},
	}

	for _, tt := range terminalTriggers {
		t.Run(string(tt.trigger), func(t *testing.T) {
			machine := NewWaiverLifecycle().Build(WaiverPending)
			if err := machine.Fire(context.Background(), tt.trigger); err != nil {
				t.Fatalf("Fire() unexpected error: %v", err)
			}
			if machine.State() != tt.want {
				t.Errorf("State() = %v, want %v", machine.State(), tt.want)
			}

			// Every decision is terminal.
			if err := machine.Fire(context.Background(), TriggerApprove); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected decided waiver to refuse further triggers, got %v", err)
			}
		})
	}
}

func TestBuilder_Reuse(t *testing.T) {
	// One builder, many machines: firing one must not move the others.
	b := NewInvoiceLifecycle()
	m1 := b.Build(InvoiceDraft)
	m2 := b.Build(InvoiceDraft)

	if err := m1.Fire(context.Background(), TriggerIssue); err != nil {
		t.Fatalf("Fire() unexpected error: %v", err)
	}
	if m2.State() != InvoiceDraft {
		t.Errorf("second machine moved to %v, want DRAFT", m2.State())
	}
}

func TestStateMachine_CanFire(t *testing.T) {
	machine := NewPaymentLifecycle().Build(PaymentPending)

	if !machine.CanFire(TriggerValidate) {
		t.Error("expected CanFire(VALIDATE) from PENDING")
	}
	if machine.CanFire(TriggerApprove) {
		t.Error("did not expect CanFire(APPROVE) on a payment machine")
	}
}

func TestStateMachine_GuardedTransition(t *testing.T) {
	b := NewBuilder()
	allow := false
	b.Configure("A").PermitIf("GO", "B", func(ctx context.Context) bool { return allow })

	machine := b.Build("A")
	if err := machine.Fire(context.Background(), "GO"); !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() error = %v, want ErrGuardFailed", err)
	}

	allow = true
	machine = b.Build("A")
	if err := machine.Fire(context.Background(), "GO"); err != nil {
		t.Fatalf("Fire() unexpected error: %v", err)
	}
	if machine.State() != "B" {
		t.Errorf("State() = %v, want B", machine.State())
	}
}
