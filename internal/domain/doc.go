// Package domain contains the entities shared by the assessment engine: skill
// mastery records, repetition cards, adaptive sessions and the catalog view
// of skills and questions.
//
// Entities in this package carry no behavior beyond construction and
// validation. Scheduling, mastery estimation and session transitions live in
// the sub-packages srs, mastery and session, which treat these types as
// immutable values and return updated copies.
package domain
