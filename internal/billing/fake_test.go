package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hugh/estateflow/internal/billing"
	"github.com/stripe/stripe-go/v76"
)

// fakeStripe keeps subscriptions in memory.
type fakeStripe struct {
	mu         sync.Mutex
	subs       map[string]*billing.Subscription
	byCustomer map[string]string
	nextID     int
	keys       []string
	failWrites error
	failReads  error
	customers  []string
	checkouts  []billing.CheckoutParams
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{subs: map[string]*billing.Subscription{}, byCustomer: map[string]string{}}
}

func (f *fakeStripe) addSubscription(customerID, subID, status string, items ...billing.SubscriptionItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &billing.Subscription{ID: subID, Customer: customerID, Status: status}
	sub.Items.Data = items
	f.subs[subID] = sub
	f.byCustomer[customerID] = subID
}

func (f *fakeStripe) seatQuantity(subID, priceID string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.subs[subID].Item(priceID)
	if item == nil {
		return 0, false
	}
	return item.Quantity, true
}

func (f *fakeStripe) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *fakeStripe) LatestSubscription(ctx context.Context, customerID string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads != nil {
		return nil, f.failReads
	}
	id, ok := f.byCustomer[customerID]
	if !ok {
		return nil, nil
	}
	sub := *f.subs[id]
	return &sub, nil
}

func (f *fakeStripe) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads != nil {
		return nil, f.failReads
	}
	sub, ok := f.subs[subscriptionID]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Type: stripe.ErrorTypeInvalidRequest, Msg: "No such subscription"}
	}
	cp := *sub
	cp.Items.Data = append([]billing.SubscriptionItem(nil), sub.Items.Data...)
	return &cp, nil
}

func (f *fakeStripe) CreateSubscriptionItem(ctx context.Context, subscriptionID, priceID string, quantity int64, key string) (*billing.SubscriptionItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	f.keys = append(f.keys, key)
	sub := f.subs[subscriptionID]
	item := billing.SubscriptionItem{ID: f.id("si"), Quantity: quantity, Price: billing.Price{ID: priceID, UnitAmount: 1000}}
	sub.Items.Data = append(sub.Items.Data, item)
	return &item, nil
}

func (f *fakeStripe) UpdateSubscriptionItem(ctx context.Context, itemID string, quantity int64, key string) (*billing.SubscriptionItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	f.keys = append(f.keys, key)
	for _, sub := range f.subs {
		for i := range sub.Items.Data {
			if sub.Items.Data[i].ID == itemID {
				sub.Items.Data[i].Quantity = quantity
				item := sub.Items.Data[i]
				return &item, nil
			}
		}
	}
	return nil, errors.New("no such item")
}

func (f *fakeStripe) DeleteSubscriptionItem(ctx context.Context, itemID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	f.keys = append(f.keys, key)
	for _, sub := range f.subs {
		for i := range sub.Items.Data {
			if sub.Items.Data[i].ID == itemID {
				sub.Items.Data = append(sub.Items.Data[:i], sub.Items.Data[i+1:]...)
				return nil
			}
		}
	}
	return errors.New("no such item")
}

func (f *fakeStripe) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*billing.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers = append(f.customers, email)
	return &billing.Customer{ID: f.id("cus"), Email: email}, nil
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, params)
	return &billing.Session{ID: f.id("cs"), URL: "https://checkout.test/session"}, nil
}

func (f *fakeStripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*billing.Session, error) {
	return &billing.Session{ID: f.id("bps"), URL: "https://billing.test/" + customerID}, nil
}
