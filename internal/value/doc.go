// Package value provides the JSON value layer shared by the render engine,
// the wire protocol, and the sqlite store.
//
// Hook state is any JSON-compatible value. Two concerns need a stable byte
// form of such values:
//   - Change detection: a hook entry is only part of the state delta when its
//     new value differs from the prior one.
//   - Correlation ids: async requests are tagged with hookID + "-" + JSON(dep),
//     which must be identical across invocations and hosts.
//
// Both use MarshalCanonical, an RFC 8785 style encoding: object keys sorted by
// UTF-16 code units, no insignificant whitespace, no HTML escaping, strings NFC
// normalised, and numbers in their shortest round-trip form.
//
// Slot is the explicit presence marker for a state cell. A missing cell and a
// cell holding JSON null are different things and Slot keeps them apart.
package value
