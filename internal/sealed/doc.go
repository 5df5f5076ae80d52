// Package sealed implements the encrypted envelope that backs every blob
// the vault persists: session credentials, profiles, mail settings,
// disconnected-account handles and push encryption kits.
//
// A Container seals a serializable value under the process main key and
// opens it only with the same key. Opening fails closed: a wrong key or a
// damaged blob yields an error, never a partial value. Blobs are written
// through a Backend, which is either a durable file store or an in-memory
// store selected by configuration.
package sealed
