package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/tourdesk/ledger-backend/internal/models"
	"github.com/tourdesk/ledger-backend/internal/services"
)

// demoData builds a small catalogue for the memory driver
func demoData(now time.Time) ([]models.TourPackage, []*models.Booking) {
	goa := models.TourPackage{ID: uuid.New(), PackageName: "Goa Getaway", Price: models.NewMoney(18500, 0)}
	kerala := models.TourPackage{ID: uuid.New(), PackageName: "Kerala Backwaters", Price: models.NewMoney(24000, 0)}
	ladakh := models.TourPackage{ID: uuid.New(), PackageName: "Ladakh Road Trip", Price: models.NewMoney(42000, 0)}

	type seed struct {
		name     string
		mobile   string
		pkg      models.TourPackage
		members  int
		discount models.Money
		plan     models.PaymentType
		paid     []models.Money
	}
	seeds := []seed{
		{name: "Asha Rao", mobile: "9876543210", pkg: goa, members: 2, plan: models.PaymentTypeInstallment, paid: []models.Money{models.NewMoney(10000, 0)}},
		{name: "Vikram Shah", mobile: "+91 98450 12345", pkg: kerala, members: 1, plan: models.PaymentTypeOneTime},
		{name: "Meera Iyer", mobile: "09988776655", pkg: ladakh, members: 3, discount: models.NewMoney(6000, 0), plan: models.PaymentTypeInstallment,
			paid: []models.Money{models.NewMoney(60000, 0), models.NewMoney(62000, 0)}},
		{name: "Kabir Das", mobile: "", pkg: goa, members: 4, plan: models.PaymentTypeInstallment, paid: []models.Money{models.NewMoney(20000, 50)}},
	}

	bookings := make([]*models.Booking, 0, len(seeds))
	for i, s := range seeds {
		net := s.pkg.Price * models.Money(s.members)
		b := &models.Booking{
			ID:           uuid.New(),
			Name:         s.name,
			MobileNo:     s.mobile,
			TourPackage:  s.pkg,
			PackagePrice: s.pkg.Price,
			MemberCount:  s.members,
			NetCost:      net,
			Discount:     s.discount,
			TotalCost:    net - s.discount,
			PaymentType:  s.plan,
			CreatedAt:    now.AddDate(0, 0, -30+i),
			UpdatedAt:    now.AddDate(0, 0, -30+i),
		}
		if s.mobile == "" {
			b.Members = []models.Member{{ID: uuid.New(), Name: "Zoya Das", MobileNo: "8123456789", Address: "Bengaluru"}}
		}
		for j, amount := range s.paid {
			b.Payments = append(b.Payments, models.Payment{
				ID:          uuid.New(),
				BookingID:   b.ID,
				Amount:      amount,
				Method:      models.PaymentMethodUPI,
				Status:      models.PaymentStatusPaid,
				PaymentDate: now.AddDate(0, 0, -20+j*7).UTC(),
			})
		}
		b.ApplyLedger(services.ComputeLedger(b.TotalCost, b.Payments, nil))
		bookings = append(bookings, b)
	}

	return []models.TourPackage{goa, kerala, ladakh}, bookings
}
