// Package presenter builds the headless view model of a notification bell:
// the badge text, the latest dropdown items and the connection indicator.
//
// A Presenter reads the store and channel observables and never writes to
// the store. User interactions are forwarded to Actions, normally a
// session.Session:
//
//	p := presenter.New(s.Store(), s.Channel(),
//		presenter.WithActions(s),
//		presenter.WithAlerter(presenter.Bell(os.Stdout)),
//	)
//	go p.Run(ctx)
//
//	for msg := range p.Updates(ctx).Receive(ctx) {
//		render(msg.Data)
//	}
//
// Alerters receive every push event after it has been applied to the store.
// A panicking alerter is logged and skipped.
package presenter
