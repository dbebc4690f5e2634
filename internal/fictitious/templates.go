package fictitious

// DefaultTemplates — расписание, с которым магазин живёт из коробки.
// Переопределяется секцией fictitious_messages конфига.
func DefaultTemplates() []Template {
	return []Template{
		{Message: "Seu pedido foi registrado.", Days: 0, Hour: "", AppliesTo: AudienceBoth},
		{Message: "Pedido em separação no centro de distribuição.", Days: 2, Hour: "09:30", AppliesTo: AudienceBoth},
		{Message: "Pedido em transporte para o centro de exportação.", Days: 5, Hour: "14:00", AppliesTo: AudienceBoth},
		{Message: "Objeto aguardando liberação na unidade de exportação.", Days: 9, Hour: "11:00", AppliesTo: AudienceTracked},
		{Message: "Objeto em trânsito para o destino final.", Days: 14, Hour: "16:20", AppliesTo: AudienceTracked},
		{Message: "Pedido aguardando atualização da transportadora.", Days: 12, Hour: "10:00", AppliesTo: AudienceUntracked},
	}
}
