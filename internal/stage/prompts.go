package stage

// DefaultPromptTemplates are the seeded per-stage prompts, used by the
// in-memory prompt store and mirrored by the SQL seed migration.
func DefaultPromptTemplates() map[Stage]PromptTemplate {
	return map[Stage]PromptTemplate{
		Greeting: {
			StageName: Greeting,
			SystemPrompt: "Você é um assistente de agendamento odontológico. Seja breve, amigável e direto. " +
				"Responda com no máximo 20 palavras. Identifique se é cliente novo ou recorrente.",
			UserTemplate: "Cliente disse: {message}\nContexto: {context}",
			Active:       true,
		},
		Intent: {
			StageName: Intent,
			SystemPrompt: "Identifique a intenção do cliente: agendar, reagendar, cancelar ou dúvida. " +
				"Responda confirmando o que entendeu, em no máximo 20 palavras.",
			UserTemplate: "Cliente disse: {message}\nDados já coletados: {collected_data}\nDados faltantes: {missing_data}\n{corrections}",
			Active:       true,
		},
		DataCollection: {
			StageName: DataCollection,
			SystemPrompt: "Colete os dados necessários: nome, procedimento e dia desejado. " +
				"Faça UMA pergunta por vez. Máximo 20 palavras. Seja específico e claro.",
			UserTemplate: "Cliente disse: {message}\nDados já coletados: {collected_data}\nDados faltantes: {missing_data}\n{corrections}",
			Active:       true,
		},
		SlotProposal: {
			StageName: SlotProposal,
			SystemPrompt: "Proponha os horários disponíveis baseados na preferência do cliente. " +
				"Seja direto e ofereça opções numeradas. Máximo 30 palavras.",
			UserTemplate: "Cliente deseja: {preference}\nProcedimento: {procedure}\nHorários disponíveis: {slots}\n{corrections}",
			Active:       true,
		},
		Confirmation: {
			StageName: Confirmation,
			SystemPrompt: "Confirme o agendamento com o cliente. Repita os dados principais e peça " +
				"uma confirmação. Máximo 25 palavras.",
			UserTemplate: "Cliente disse: {choice}\nDados do agendamento: {appointment_data}\n{corrections}",
			Active:       true,
		},
		Closing: {
			StageName: Closing,
			SystemPrompt: "Finalize o atendimento com um resumo e agradecimento. " +
				"Máximo 25 palavras. Seja cordial e profissional.",
			UserTemplate: "Resumo do agendamento: {summary}",
			Active:       true,
		},
	}
}
