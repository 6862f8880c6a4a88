// Package sources detects candidate changes on both sides of a connector.
//
// A Source reads the raw records of one collection modified at or after a
// checkpoint:
//   - LocalSource: lists the local record store, scoped by org unit and collection
//   - APISource: issues an authenticated GET against the connector endpoint and
//     extracts the record array from the response body
//
// The Detector fans out over every (side, collection) pair the connector needs.
// A failing pair yields no candidates and a DetectionError; the other pairs are
// unaffected. Detection never writes to either side.
package sources
