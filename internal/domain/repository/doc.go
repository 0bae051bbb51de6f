// Package repository define las entidades durables y los contratos de
// acceso (apps, usuarios, scopes, orgs, IdPs SAML, consents, passkeys,
// claves de firma). Las implementaciones viven en internal/store/{pg,memory}.
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - Las lecturas filtran registros con soft-delete (deleted_at IS NULL).
//   - Create/Update retornan la fila releída después de escribir.
package repository
