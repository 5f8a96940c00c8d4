// Package subscription implements the subscription registry: directed,
// selector-qualified notification edges from a reactive source to a target
// (a computation or a fragment).
//
// # Selectors
//
// A selector decides which changes at the source reach the target:
//
//	subscription.Everything()     // every change
//	subscription.StructuralOnly() // shape changes (list insert/remove)
//	subscription.CarriedOnly()    // value-only changes
//	subscription.Key("title")     // changes tagged with key "title"
//
// # Ordering
//
// SubscribersOf returns subscribers in subscription-creation order. The drain
// algorithm relies on this to produce reproducible patch ordering.
package subscription
