package migration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fixed ids so every environment references the same seeded templates.
var (
	TemplatePurchaseID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	TemplateSaleID     = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	TemplateRentalID   = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func steps(defs ...[2]string) datatypes.JSONSlice[models.TemplateStep] {
	out := make(datatypes.JSONSlice[models.TemplateStep], 0, len(defs))
	for i, d := range defs {
		out = append(out, models.TemplateStep{Title: d[0], Description: d[1], Order: i + 1})
	}
	return out
}

// SeedTemplates lists the built-in timeline templates.
func SeedTemplates() []models.TimelineTemplate {
	return []models.TimelineTemplate{
		{
			Base: models.Base{ID: TemplatePurchaseID},
			Name: "Achat Appartement",
			Steps: steps(
				[2]string{"Offre acceptee", "Votre offre a ete acceptee par le vendeur"},
				[2]string{"Signature compromis", "Signature du compromis de vente chez le notaire"},
				[2]string{"Depot dossier bancaire", "Envoi du dossier complet a la banque"},
				[2]string{"Accord de pret", "Reception de l'accord definitif de la banque"},
				[2]string{"Levee des conditions suspensives", "Toutes les conditions sont remplies"},
				[2]string{"Signature acte authentique", "Signature finale chez le notaire et remise des cles"},
			),
		},
		{
			Base: models.Base{ID: TemplateSaleID},
			Name: "Vente Maison",
			Steps: steps(
				[2]string{"Mandat de vente signe", "Le mandat de vente a ete signe"},
				[2]string{"Diagnostics realises", "Tous les diagnostics obligatoires ont ete effectues"},
				[2]string{"Offre recue", "Une offre d'achat a ete recue"},
				[2]string{"Offre acceptee", "L'offre a ete acceptee"},
				[2]string{"Signature compromis", "Signature du compromis de vente"},
				[2]string{"Purge des droits de preemption", "Delai de preemption termine"},
				[2]string{"Signature acte authentique", "Vente finalisee chez le notaire"},
			),
		},
		{
			Base: models.Base{ID: TemplateRentalID},
			Name: "Location Prestige",
			Steps: steps(
				[2]string{"Visite effectuee", "Le bien a ete visite"},
				[2]string{"Dossier locataire valide", "Le dossier du locataire est complet et valide"},
				[2]string{"Bail prepare", "Le contrat de bail est pret"},
				[2]string{"Signature du bail", "Le bail a ete signe par toutes les parties"},
				[2]string{"Etat des lieux entree", "L'etat des lieux d'entree a ete realise"},
				[2]string{"Remise des cles", "Les cles ont ete remises au locataire"},
			),
		},
	}
}

func seedTimelineTemplates(ctx context.Context, tx *gorm.DB, env Env) error {
	templates := SeedTemplates()
	for i := range templates {
		templates[i].CreatedAt = env.Now
		templates[i].UpdatedAt = env.Now
	}
	// Rows seeded by an earlier deployment are left as they are.
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&templates).Error; err != nil {
		return fmt.Errorf("seeding timeline templates: %w", err)
	}
	return nil
}
